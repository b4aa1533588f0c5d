/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
)

// serveHealthCheck reports Ok only while the loop is still taking work.
func serveHealthCheck(cfg *Config, loop *Loop, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(cfg, w)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := loop.Do(ctx, func() {}); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Unavailable\n"))

			return
		}

		_, err := w.Write([]byte("Ok\n"))
		if err != nil {
			errs <- err

			return
		}
	}
}

func robotsBody(cfg *Config) string {
	var b strings.Builder

	b.WriteString("User-agent: *\n")
	for _, path := range []string{"/api/", "/ws", "/pprof/"} {
		fmt.Fprintf(&b, "Disallow: %s%s\n", cfg.prefix, path)
	}

	for _, agent := range []string{"Amazonbot", "Applebot-Extended", "Bytespider", "CCBot", "ClaudeBot", "Google-Extended", "GPTBot", "meta-externalagent"} {
		fmt.Fprintf(&b, "\nUser-agent: %s\nDisallow: /\n", agent)
	}

	return b.String()
}

func serveRobots(cfg *Config, errs chan<- error) httprouter.Handle {
	data := robotsBody(cfg)

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, err := w.Write([]byte(data))
		if err != nil {
			errs <- err

			return
		}
	}
}
