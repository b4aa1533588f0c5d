package main

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

const (
	logDate     string        = `2006-01-02T15:04:05.000-07:00`
	timeout     time.Duration = 10 * time.Second
	loopBacklog int           = 1024
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, logger zerolog.Logger, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("draftbox v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logger.Debug().
			Str("size", humanReadableSize(int64(written))).
			Str("remote", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("served version page")
	}
}

// App wires the draft components to one loop and one router.
type App struct {
	loop    *Loop
	hub     *Hub
	svc     *Service
	handler http.Handler
}

func newApp(cfg *Config, clock clockwork.Clock, pool PoolProvider, rng *rand.Rand, logger zerolog.Logger, errs chan<- error) *App {
	loop := NewLoop(loopBacklog)
	timers := NewScheduler(clock, loop)
	rules := cfg.rules()

	hub := NewHub(loop, logger)
	rooms := NewRegistry(pool, clock, logger)
	engine := NewTurnEngine(rooms, hub, timers, rules, rng, logger)
	members := NewMembership(rooms, engine, hub, timers, pool, rules, logger)
	svc := NewService(rooms, engine, members, hub, timers, logger)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		logger.Error().Interface("panic", i).Str("path", r.URL.Path).Msg("handler panicked")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		_, _ = io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	registerAPI(cfg, mux, NewAPI(cfg, loop, svc, logger))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, hub, svc))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, loop, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, logger, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: cfg.corsOrigins,
		AllowedHeaders: []string{"Content-Type"},
	})

	return &App{
		loop:    loop,
		hub:     hub,
		svc:     svc,
		handler: c.Handler(mux),
	}
}

// reap periodically removes rooms that nobody has used for the timeout.
func (a *App) reap(ctx context.Context, clock clockwork.Clock, timeout time.Duration) {
	if timeout <= 0 {
		return
	}

	ticker := clock.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			a.loop.Post(func() {
				a.svc.Reap(timeout)
			})
		}
	}
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logger := newLogger(cfg)

	pool, err := newPoolProvider(cfg)
	if err != nil {
		return err
	}

	logger.Info().
		Str("version", releaseVersion).
		Int("pool_size", len(pool.Pool())).
		Int("quota", cfg.quota).
		Dur("turn_time", cfg.turnTime).
		Bool("host_participates", cfg.hostParticipates).
		Bool("auto_reset", cfg.autoReset).
		Msg("starting draftbox")

	errs := make(chan error, 64)

	clock := clockwork.NewRealClock()
	app := newApp(cfg, clock, pool, nil, logger, errs)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	go app.loop.Run(loopCtx)
	go app.reap(ctx, clock, cfg.roomTimeout)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-errs:
				logger.Debug().Err(err).Msg("failed to write response")
			}
		}
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           app.handler,
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
	}

	if cfg.scheme() == "http" {
		srv.Handler = h2c.NewHandler(app.handler, &http2.Server{})
	}

	serveErr := make(chan error, 1)

	go func() {
		logger.Info().Msgf("listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return err
	}

	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
