/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrItemUnavailable = errors.New("item unavailable")
	ErrNameTaken       = errors.New("name taken")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidMessage  = errors.New("invalid message")
)

// draftError pairs one of the sentinel kinds above with the text shown to
// the connection that caused it.
type draftError struct {
	kind    error
	message string
}

func (e *draftError) Error() string {
	return e.message
}

func (e *draftError) Unwrap() error {
	return e.kind
}

func fail(kind error, message string) error {
	return &draftError{kind: kind, message: message}
}

func failf(kind error, format string, args ...any) error {
	return &draftError{kind: kind, message: fmt.Sprintf(format, args...)}
}

func newLogger(cfg *Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.verbose {
		level = zerolog.DebugLevel
	}

	out := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: logDate,
		NoColor:    true,
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
