/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const roomIDLength = 6

// Registry maps room IDs to rooms. Like the rooms it holds, it is only
// used from the loop goroutine.
type Registry struct {
	rooms map[string]*Room
	pool  PoolProvider
	clock clockwork.Clock
	log   zerolog.Logger
}

func NewRegistry(pool PoolProvider, clock clockwork.Clock, logger zerolog.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		pool:  pool,
		clock: clock,
		log:   logger.With().Str("component", "registry").Logger(),
	}
}

func normalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func (reg *Registry) Get(id string) (*Room, bool) {
	room, ok := reg.rooms[normalizeRoomID(id)]
	return room, ok
}

// Lookup reports whether room is still the registered room for its ID.
// Deferred callbacks use it to detect rooms that were closed or replaced.
func (reg *Registry) Lookup(room *Room) bool {
	current, ok := reg.rooms[room.id]
	return ok && current == room
}

// Create registers a new room under a freshly generated ID.
func (reg *Registry) Create() *Room {
	return reg.create(reg.newRoomID())
}

// GetOrCreate returns the room for id, creating it on first reference.
func (reg *Registry) GetOrCreate(id string) *Room {
	id = normalizeRoomID(id)
	if room, ok := reg.rooms[id]; ok {
		return room
	}

	return reg.create(id)
}

func (reg *Registry) create(id string) *Room {
	room := newRoom(id, reg.pool.Pool(), reg.clock.Now())
	reg.rooms[id] = room

	reg.log.Info().Str("room_id", id).Msg("room created")

	return room
}

// Delete removes a room and cancels every timer it still owns.
func (reg *Registry) Delete(room *Room) {
	if !reg.Lookup(room) {
		return
	}

	room.cancelTimers()
	delete(reg.rooms, room.id)

	reg.log.Info().Str("room_id", room.id).Msg("room deleted")
}

func (reg *Registry) Len() int {
	return len(reg.rooms)
}

// List returns every room ordered by creation time.
func (reg *Registry) List() []RoomListing {
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}

	slices.SortFunc(rooms, func(a, b *Room) int {
		if c := a.createdAt.Compare(b.createdAt); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	out := make([]RoomListing, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, RoomListing{
			RoomID:    room.id,
			UserCount: len(room.users),
			Started:   room.started,
			CreatedAt: room.createdAt,
		})
	}

	return out
}

// Reap deletes rooms that have had no active participants and no activity
// since before cutoff, and returns their IDs.
func (reg *Registry) Reap(cutoff time.Time) []string {
	var reaped []string

	for _, room := range reg.rooms {
		if len(room.users) > 0 || !room.lastActive.Before(cutoff) {
			continue
		}

		reg.Delete(room)
		reaped = append(reaped, room.id)
	}

	slices.Sort(reaped)

	return reaped
}

// newRoomID generates a crypto-random room ID and ensures it doesn't
// collide with existing rooms.
func (reg *Registry) newRoomID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for {
		buf := make([]byte, roomIDLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomIDLength)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := reg.rooms[id]; !exists {
			return id
		}
	}
}
