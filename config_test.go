/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		bind:           "0.0.0.0",
		corsOrigins:    []string{"*"},
		gracePeriod:    5 * time.Minute,
		maxMessageSize: 4096,
		port:           8080,
		quota:          5,
		roomTimeout:    time.Hour,
		turnDelay:      time.Second,
		turnTime:       10 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().validate())

	cases := map[string]func(c *Config){
		"half tls pair":    func(c *Config) { c.tlsCert = "cert.pem" },
		"port zero":        func(c *Config) { c.port = 0 },
		"port too high":    func(c *Config) { c.port = 70000 },
		"quota zero":       func(c *Config) { c.quota = 0 },
		"no turn time":     func(c *Config) { c.turnTime = 0 },
		"negative delay":   func(c *Config) { c.turnDelay = -time.Second },
		"negative grace":   func(c *Config) { c.gracePeriod = -time.Second },
		"negative timeout": func(c *Config) { c.roomTimeout = -time.Second },
		"tiny messages":    func(c *Config) { c.maxMessageSize = 10 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			require.Error(t, cfg.validate())
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	cfg := &Config{}

	newCmd(cfg)

	req.Equal("0.0.0.0", cfg.bind)
	req.Equal(8080, cfg.port)
	req.Equal(5, cfg.quota)
	req.Equal(10*time.Second, cfg.turnTime)
	req.Equal(time.Second, cfg.turnDelay)
	req.Equal(5*time.Minute, cfg.gracePeriod)
	req.Equal(time.Hour, cfg.roomTimeout)
	req.True(cfg.hostParticipates)
	req.False(cfg.autoReset)
	req.Equal([]string{"*"}, cfg.corsOrigins)
	req.NoError(cfg.validate())
}

func TestConfig_Environment_Overrides(t *testing.T) {
	req := require.New(t)

	t.Setenv("DRAFTBOX_QUOTA", "3")
	t.Setenv("DRAFTBOX_TURN_TIME", "30s")
	t.Setenv("DRAFTBOX_HOST_PARTICIPATES", "false")
	t.Setenv("DRAFTBOX_CORS_ORIGIN", "https://a.example,https://b.example")

	cfg := &Config{}
	newCmd(cfg)

	req.Equal(3, cfg.quota)
	req.Equal(30*time.Second, cfg.turnTime)
	req.False(cfg.hostParticipates)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.corsOrigins)
}

func TestConfig_Rules(t *testing.T) {
	cfg := validConfig()
	cfg.hostParticipates = true
	cfg.autoReset = true

	require.Equal(t, Rules{
		Quota:            5,
		TurnTime:         10 * time.Second,
		TurnDelay:        time.Second,
		GracePeriod:      5 * time.Minute,
		HostParticipates: true,
		AutoReset:        true,
	}, cfg.rules())
}

func TestConfig_Version_Flag(t *testing.T) {
	req := require.New(t)

	cmd := newCmd(&Config{})
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--version"})

	req.NoError(cmd.Execute())
	req.Equal("draftbox v"+releaseVersion+"\n", out.String())
}

func TestConfig_Invalid_Flags_Fail_Before_Serving(t *testing.T) {
	cmd := newCmd(&Config{})
	cmd.SetArgs([]string{"--quota", "0"})

	require.ErrorContains(t, cmd.Execute(), "invalid quota")
}
