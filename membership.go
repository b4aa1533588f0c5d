/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Membership handles participants entering and leaving rooms. All methods
// must run on the loop goroutine.
type Membership struct {
	rooms  *Registry
	engine *TurnEngine
	gw     Gateway
	timers *Scheduler
	pool   PoolProvider
	rules  Rules
	log    zerolog.Logger
}

func NewMembership(rooms *Registry, engine *TurnEngine, gw Gateway, timers *Scheduler, pool PoolProvider, rules Rules, logger zerolog.Logger) *Membership {
	return &Membership{
		rooms:  rooms,
		engine: engine,
		gw:     gw,
		timers: timers,
		pool:   pool,
		rules:  rules,
		log:    logger.With().Str("component", "membership").Logger(),
	}
}

// Join adds identity to room, reclaiming a pending snapshot with the same
// username if one exists.
func (m *Membership) Join(room *Room, identity, username string) error {
	if room.isActive(identity) {
		return fail(ErrInvalidState, "Already joined this room")
	}

	if _, taken := room.userByName(username); taken {
		return fail(ErrNameTaken, "Username already taken in this room")
	}

	if d, idx, ok := room.departedByName(username); ok {
		m.reconnect(room, d, idx, identity, username)
	} else {
		room.users = append(room.users, Participant{ID: identity, Username: username})
		room.selections[identity] = []Item{}

		if room.hostID == "" || !m.known(room, room.hostID) {
			room.hostID = identity
		}

		m.log.Info().
			Str("room_id", room.id).
			Str("user_id", identity).
			Str("username", username).
			Msg("participant joined")
	}

	room.lastActive = m.timers.Now()

	m.gw.Subscribe(identity, room.id)

	m.gw.Broadcast(room.id, evtRoomUsers, slices.Clone(room.users))
	m.gw.Broadcast(room.id, evtDisconnectedUsers, room.disconnectedList())
	m.gw.SendTo(identity, evtHostStatus, HostStatusMessage{
		IsHost:  room.hostID == identity,
		Started: room.started,
	})
	m.gw.SendTo(identity, evtGameState, room.snapshot())

	return nil
}

// known reports whether id is an active or pending participant of room.
func (m *Membership) known(room *Room, id string) bool {
	return room.isActive(id) || lo.ContainsBy(room.disconnected, func(d *departed) bool {
		return d.ID == id
	})
}

func (m *Membership) reconnect(room *Room, d *departed, idx int, identity, username string) {
	stopTimer(d.expiry)
	room.disconnected = slices.Delete(room.disconnected, idx, idx+1)

	room.users = append(room.users, Participant{ID: identity, Username: username})

	delete(room.selections, d.ID)
	room.selections[identity] = d.selections

	if room.started {
		if pos := slices.Index(room.turnOrder, d.ID); pos >= 0 {
			room.turnOrder[pos] = identity
		}
	}

	if room.hostID == d.ID {
		room.hostID = identity
	}

	m.log.Info().
		Str("room_id", room.id).
		Str("user_id", identity).
		Str("previous_id", d.ID).
		Str("username", username).
		Int("selections", len(d.selections)).
		Msg("participant reconnected")
}

// Disconnect moves identity out of the active users. Their picks are kept
// for the grace period in case they come back under the same username.
func (m *Membership) Disconnect(room *Room, identity string) {
	p, idx, ok := lo.FindIndexOf(room.users, func(p Participant) bool {
		return p.ID == identity
	})
	if !ok {
		return
	}

	room.users = slices.Delete(room.users, idx, idx+1)
	room.lastActive = m.timers.Now()

	if m.rules.GracePeriod > 0 {
		d := &departed{
			Participant:    p,
			selections:     room.selections[identity],
			disconnectedAt: m.timers.Now(),
		}
		d.expiry = m.timers.After(m.rules.GracePeriod, func() {
			m.expire(room, d)
		})
		room.disconnected = append(room.disconnected, d)
	} else {
		m.purge(room, identity)
	}

	m.log.Info().
		Str("room_id", room.id).
		Str("user_id", identity).
		Str("username", p.Username).
		Msg("participant disconnected")

	m.handOffHost(room, identity)

	if room.empty() {
		m.delete(room)
		return
	}

	m.gw.Broadcast(room.id, evtRoomUsers, slices.Clone(room.users))
	m.gw.Broadcast(room.id, evtDisconnectedUsers, room.disconnectedList())

	if holder, ok := room.holder(); ok && holder == identity {
		m.engine.Advance(room)
	}
}

// expire permanently removes a participant whose grace period ran out.
func (m *Membership) expire(room *Room, d *departed) {
	if !m.rooms.Lookup(room) {
		return
	}

	idx := slices.Index(room.disconnected, d)
	if idx < 0 {
		return
	}

	room.disconnected = slices.Delete(room.disconnected, idx, idx+1)
	m.purge(room, d.ID)

	m.log.Info().
		Str("room_id", room.id).
		Str("user_id", d.ID).
		Str("username", d.Username).
		Msg("participant removed")

	m.handOffHost(room, d.ID)

	if room.empty() {
		m.delete(room)
		return
	}

	m.gw.Broadcast(room.id, evtDisconnectedUsers, room.disconnectedList())
}

// handOffHost passes the host role from departing to the longest-present
// active participant, if there is one.
func (m *Membership) handOffHost(room *Room, departing string) {
	if room.hostID != departing || len(room.users) == 0 {
		return
	}

	room.hostID = room.users[0].ID

	m.log.Info().
		Str("room_id", room.id).
		Str("user_id", room.hostID).
		Str("previous_id", departing).
		Msg("host reassigned")

	m.gw.SendTo(room.hostID, evtHostStatus, HostStatusMessage{IsHost: true, Started: room.started})
}

// purge drops identity from the turn order and returns its picks to the
// pool, keeping currentTurn on the same participant where possible.
func (m *Membership) purge(room *Room, identity string) {
	room.pool = append(room.pool, room.selections[identity]...)
	delete(room.selections, identity)

	pos := slices.Index(room.turnOrder, identity)
	if pos < 0 {
		return
	}

	room.turnOrder = slices.Delete(room.turnOrder, pos, pos+1)

	switch {
	case room.currentTurn > pos:
		room.currentTurn--
	case room.currentTurn >= len(room.turnOrder):
		room.currentTurn = 0
	}
}

// Exit closes the room for everyone.
func (m *Membership) Exit(room *Room) {
	m.gw.Broadcast(room.id, evtRoomClosed, RoomClosedMessage{Message: "Host has closed the room"})

	m.log.Info().Str("room_id", room.id).Msg("room closed by host")

	m.delete(room)
}

// Reset returns a finished or unstarted room to a fresh lobby.
func (m *Membership) Reset(room *Room) error {
	if room.started && !room.ended {
		return fail(ErrInvalidState, "Selection is still in progress")
	}

	room.cancelTurn()
	stopTimer(room.pacer)
	room.pacer = nil

	room.restock(m.pool.Pool())

	room.turnOrder = nil
	room.currentTurn = 0
	room.started = false
	room.ended = false
	room.epoch++
	room.lastActive = m.timers.Now()

	m.log.Info().Str("room_id", room.id).Msg("room reset")

	m.gw.Broadcast(room.id, evtPlayAgain, nil)

	return nil
}

func (m *Membership) delete(room *Room) {
	m.rooms.Delete(room)
	m.gw.CloseRoom(room.id)
}
