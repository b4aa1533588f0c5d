/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
)

const qrSize = 320

type StatusResponse struct {
	Message     string    `json:"message"`
	ActiveRooms int       `json:"activeRooms"`
	Timestamp   time.Time `json:"timestamp"`
}

type CreateRoomResponse struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type RoomListResponse struct {
	Rooms []RoomListing `json:"rooms"`
	Total int           `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// API serves the HTTP convenience endpoints. Every handler reads room state
// through the loop.
type API struct {
	cfg  *Config
	loop *Loop
	svc  *Service
	log  zerolog.Logger
}

func NewAPI(cfg *Config, loop *Loop, svc *Service, logger zerolog.Logger) *API {
	return &API{
		cfg:  cfg,
		loop: loop,
		svc:  svc,
		log:  logger.With().Str("component", "api").Logger(),
	}
}

func (a *API) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(a.cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Debug().Err(err).Str("path", r.URL.Path).Msg("failed to write response")
	}
}

func (a *API) unavailable(w http.ResponseWriter, r *http.Request, err error) {
	a.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request abandoned")

	a.writeJSON(w, r, http.StatusServiceUnavailable, ErrorResponse{Error: "Server unavailable"})
}

func (a *API) serveStatus() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var resp StatusResponse

		err := a.loop.Do(r.Context(), func() {
			resp = StatusResponse{
				Message:     "draftbox v" + releaseVersion + " running",
				ActiveRooms: a.svc.rooms.Len(),
				Timestamp:   a.svc.timers.Now().UTC(),
			}
		})
		if err != nil {
			a.unavailable(w, r, err)
			return
		}

		a.writeJSON(w, r, http.StatusOK, resp)
	}
}

func (a *API) serveCreateRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var id string

		err := a.loop.Do(r.Context(), func() {
			id = a.svc.CreateRoom().ID()
		})
		if err != nil {
			a.unavailable(w, r, err)
			return
		}

		a.log.Info().Str("room_id", id).Str("remote", realIP(r)).Msg("room created over http")

		a.writeJSON(w, r, http.StatusOK, CreateRoomResponse{
			RoomID:  id,
			Message: "Room created successfully",
		})
	}
}

func (a *API) serveListRooms() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var rooms []RoomListing

		err := a.loop.Do(r.Context(), func() {
			rooms = a.svc.rooms.List()
		})
		if err != nil {
			a.unavailable(w, r, err)
			return
		}

		a.writeJSON(w, r, http.StatusOK, RoomListResponse{Rooms: rooms, Total: len(rooms)})
	}
}

// lookup fetches a room summary, writing the error response itself when
// the room is missing or the loop is gone.
func (a *API) lookup(w http.ResponseWriter, r *http.Request, id string) (RoomSummary, bool) {
	var (
		summary RoomSummary
		found   bool
	)

	err := a.loop.Do(r.Context(), func() {
		if room, ok := a.svc.rooms.Get(id); ok {
			summary, found = room.summary(), true
		}
	})
	if err != nil {
		a.unavailable(w, r, err)
		return RoomSummary{}, false
	}

	if !found {
		a.writeJSON(w, r, http.StatusNotFound, ErrorResponse{Error: "Room not found"})
		return RoomSummary{}, false
	}

	return summary, true
}

func (a *API) serveRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		summary, ok := a.lookup(w, r, ps.ByName("roomId"))
		if !ok {
			return
		}

		a.writeJSON(w, r, http.StatusOK, summary)
	}
}

// serveQR renders a PNG QR code pointing at the room's info URL.
func (a *API) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		summary, ok := a.lookup(w, r, ps.ByName("roomId"))
		if !ok {
			return
		}

		scheme := a.cfg.scheme()
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		path := strings.TrimSuffix(r.URL.Path, "/qr")
		path = strings.TrimSuffix(path, ps.ByName("roomId")) + summary.RoomID

		png, err := qrcode.Encode(scheme+"://"+r.Host+path, qrcode.Medium, qrSize)
		if err != nil {
			a.log.Error().Err(err).Str("room_id", summary.RoomID).Msg("qr generation failed")
			a.writeJSON(w, r, http.StatusInternalServerError, ErrorResponse{Error: "QR generation failed"})
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		securityHeaders(a.cfg, w)

		_, _ = w.Write(png)
	}
}

func registerAPI(cfg *Config, mux *httprouter.Router, a *API) {
	mux.GET(cfg.prefix+"/", a.serveStatus())

	mux.POST(cfg.prefix+"/api/rooms", a.serveCreateRoom())
	mux.POST(cfg.prefix+"/api/create-room", a.serveCreateRoom())

	mux.GET(cfg.prefix+"/api/rooms", a.serveListRooms())
	mux.GET(cfg.prefix+"/api/rooms/:roomId", a.serveRoom())
	mux.GET(cfg.prefix+"/api/room/:roomId", a.serveRoom())

	mux.GET(cfg.prefix+"/api/rooms/:roomId/qr", a.serveQR())
}
