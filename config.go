package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind             string
	corsOrigins      []string
	gracePeriod      time.Duration
	hostParticipates bool
	autoReset        bool
	maxMessageSize   int64
	poolFile         string
	port             int
	prefix           string
	profile          bool
	quota            int
	roomTimeout      time.Duration
	tlsCert          string
	tlsKey           string
	turnDelay        time.Duration
	turnTime         time.Duration
	verbose          bool
	version          bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.quota < 1 {
		return fmt.Errorf("invalid quota (must be at least 1): %d", c.quota)
	}
	if c.turnTime <= 0 {
		return fmt.Errorf("invalid turn time (must be positive): %s", c.turnTime)
	}
	if c.turnDelay < 0 {
		return fmt.Errorf("invalid turn delay (must not be negative): %s", c.turnDelay)
	}
	if c.gracePeriod < 0 {
		return fmt.Errorf("invalid grace period (must not be negative): %s", c.gracePeriod)
	}
	if c.roomTimeout < 0 {
		return fmt.Errorf("invalid room timeout (must not be negative): %s", c.roomTimeout)
	}
	if c.maxMessageSize < 64 {
		return fmt.Errorf("invalid max message size (must be at least 64 bytes): %d", c.maxMessageSize)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// rules extracts the per-session draft settings shared by the turn engine
// and the membership manager.
func (c *Config) rules() Rules {
	return Rules{
		Quota:            c.quota,
		TurnTime:         c.turnTime,
		TurnDelay:        c.turnDelay,
		GracePeriod:      c.gracePeriod,
		HostParticipates: c.hostParticipates,
		AutoReset:        c.autoReset,
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("DRAFTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "draftbox",
		Short:         "A real-time, turn-based draft room server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.BoolVar(&cfg.autoReset, "auto-reset", false, "clear turn order and return to the lobby when a draft completes (env: DRAFTBOX_AUTO_RESET)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: DRAFTBOX_BIND)")
	fs.StringSliceVar(&cfg.corsOrigins, "cors-origin", []string{"*"}, "allowed CORS origin, may be repeated (env: DRAFTBOX_CORS_ORIGIN)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 5*time.Minute, "time a disconnected participant may reconnect and keep their picks (env: DRAFTBOX_GRACE_PERIOD)")
	fs.BoolVar(&cfg.hostParticipates, "host-participates", true, "include the host in the turn order (env: DRAFTBOX_HOST_PARTICIPATES)")
	fs.Int64Var(&cfg.maxMessageSize, "max-message-size", 4096, "maximum size in bytes of an inbound websocket message (env: DRAFTBOX_MAX_MESSAGE_SIZE)")
	fs.StringVar(&cfg.poolFile, "pool-file", "", "path to a YAML file listing the selectable items (env: DRAFTBOX_POOL_FILE)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: DRAFTBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: DRAFTBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: DRAFTBOX_PROFILE)")
	fs.IntVar(&cfg.quota, "quota", 5, "number of items each participant drafts (env: DRAFTBOX_QUOTA)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms without participants are removed, 0 to disable (env: DRAFTBOX_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: DRAFTBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: DRAFTBOX_TLS_KEY)")
	fs.DurationVar(&cfg.turnDelay, "turn-delay", time.Second, "pause between one pick and the next turn (env: DRAFTBOX_TURN_DELAY)")
	fs.DurationVar(&cfg.turnTime, "turn-time", 10*time.Second, "time a participant has to pick before one is made for them (env: DRAFTBOX_TURN_TIME)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: DRAFTBOX_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: DRAFTBOX_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("draftbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
