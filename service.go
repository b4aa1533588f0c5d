/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Service routes inbound client messages to the turn engine and the
// membership manager. It runs on the loop goroutine.
type Service struct {
	rooms   *Registry
	engine  *TurnEngine
	members *Membership
	gw      Gateway
	timers  *Scheduler

	// sessions maps connection IDs to the room each one joined.
	sessions map[string]string

	log zerolog.Logger
}

func NewService(rooms *Registry, engine *TurnEngine, members *Membership, gw Gateway, timers *Scheduler, logger zerolog.Logger) *Service {
	return &Service{
		rooms:    rooms,
		engine:   engine,
		members:  members,
		gw:       gw,
		timers:   timers,
		sessions: make(map[string]string),
		log:      logger.With().Str("component", "service").Logger(),
	}
}

// Handle processes one message. Failures are reported only to connID.
func (s *Service) Handle(connID string, msg ClientMessage) {
	err := s.dispatch(connID, msg)
	if err == nil {
		return
	}

	var de *draftError
	if !errors.As(err, &de) {
		s.log.Error().Err(err).Str("connection_id", connID).Str("type", msg.Type).Msg("request failed")
	} else {
		s.log.Debug().Err(err).Str("connection_id", connID).Str("type", msg.Type).Msg("request rejected")
	}

	s.gw.SendTo(connID, evtError, ErrorMessage{Message: err.Error()})
}

func (s *Service) dispatch(connID string, msg ClientMessage) error {
	if msg.Type == msgJoin {
		return s.join(connID, msg)
	}

	room, ok := s.rooms.Get(msg.RoomID)
	if !ok {
		return fail(ErrRoomNotFound, "Room not found")
	}

	switch msg.Type {
	case msgStartSelection:
		if room.hostID != connID {
			return fail(ErrForbidden, "Only host can start the selection")
		}

		return s.engine.StartSession(room)
	case msgSelectItem:
		return s.engine.SelectItem(room, connID, msg.Item)
	case msgPlayAgain:
		if room.hostID != connID {
			return fail(ErrForbidden, "Only host can restart the game")
		}

		return s.members.Reset(room)
	case msgExitRoom:
		if room.hostID != connID {
			return fail(ErrForbidden, "Only host can close the room")
		}

		s.members.Exit(room)
		s.forget(room.id)

		return nil
	}

	return fail(ErrInvalidMessage, "Unknown message type")
}

func (s *Service) join(connID string, msg ClientMessage) error {
	if current, ok := s.sessions[connID]; ok {
		if room, ok := s.rooms.Get(current); ok && room.isActive(connID) {
			if room.id == msg.RoomID {
				return fail(ErrInvalidState, "Already joined this room")
			}

			return fail(ErrInvalidState, "Already in another room")
		}

		delete(s.sessions, connID)
	}

	room := s.rooms.GetOrCreate(msg.RoomID)

	if err := s.members.Join(room, connID, msg.Username); err != nil {
		return err
	}

	s.sessions[connID] = room.id

	return nil
}

// Disconnect handles a closed connection.
func (s *Service) Disconnect(connID string) {
	roomID, ok := s.sessions[connID]
	if !ok {
		return
	}
	delete(s.sessions, connID)

	if room, ok := s.rooms.Get(roomID); ok {
		s.members.Disconnect(room, connID)
	}
}

// forget drops every session pointing at roomID.
func (s *Service) forget(roomID string) {
	for connID, id := range s.sessions {
		if id == roomID {
			delete(s.sessions, connID)
		}
	}
}

// CreateRoom registers an empty room for the HTTP API.
func (s *Service) CreateRoom() *Room {
	return s.rooms.Create()
}

// Reap removes rooms idle since before the timeout.
func (s *Service) Reap(timeout time.Duration) {
	for _, id := range s.rooms.Reap(s.timers.Now().Add(-timeout)) {
		s.gw.CloseRoom(id)
		s.forget(id)

		s.log.Info().Str("room_id", id).Dur("timeout", timeout).Msg("idle room reaped")
	}
}
