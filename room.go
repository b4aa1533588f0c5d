/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
)

// Participant is an active member of a room. ID is the connection identity
// and changes when the same person reconnects under the same username.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// departed is a participant who dropped and may still reclaim their picks.
type departed struct {
	Participant
	selections     []Item
	disconnectedAt time.Time
	expiry         clockwork.Timer
}

// Room is the state of one draft. It is only ever touched from the loop
// goroutine, so it carries no lock.
type Room struct {
	id         string
	createdAt  time.Time
	lastActive time.Time

	hostID       string
	users        []Participant
	disconnected []*departed

	pool       []Item
	selections map[string][]Item

	turnOrder   []string
	currentTurn int
	started     bool
	ended       bool

	// awaiting is the identity whose pick is open; empty between turns.
	awaiting string
	// epoch changes on every start and reset so that callbacks armed for
	// an earlier session can tell they are stale. turns and paces count
	// armed turn and pacing timers for the same purpose.
	epoch     int
	turns     int
	paces     int
	turnTimer clockwork.Timer
	pacer     clockwork.Timer
}

func newRoom(id string, pool []Item, now time.Time) *Room {
	return &Room{
		id:         id,
		createdAt:  now,
		lastActive: now,
		pool:       pool,
		selections: make(map[string][]Item),
	}
}

func (r *Room) ID() string {
	return r.id
}

func (r *Room) user(id string) (Participant, bool) {
	return lo.Find(r.users, func(p Participant) bool {
		return p.ID == id
	})
}

func (r *Room) isActive(id string) bool {
	_, ok := r.user(id)
	return ok
}

func (r *Room) userByName(name string) (Participant, bool) {
	return lo.Find(r.users, func(p Participant) bool {
		return strings.EqualFold(p.Username, name)
	})
}

func (r *Room) departedByName(name string) (*departed, int, bool) {
	return lo.FindIndexOf(r.disconnected, func(d *departed) bool {
		return strings.EqualFold(d.Username, name)
	})
}

// username resolves an identity to a display name, falling back to the
// pending snapshots and finally to a shortened identity.
func (r *Room) username(id string) string {
	if p, ok := r.user(id); ok {
		return p.Username
	}

	if d, ok := lo.Find(r.disconnected, func(d *departed) bool { return d.ID == id }); ok {
		return d.Username
	}

	if len(id) > 6 {
		id = id[:6]
	}

	return "User-" + id
}

// holder returns the participant whose pick is currently open.
func (r *Room) holder() (string, bool) {
	if !r.started || r.ended || r.awaiting == "" {
		return "", false
	}

	return r.awaiting, true
}

func (r *Room) poolIndex(name string) int {
	_, idx, _ := lo.FindIndexOf(r.pool, func(item Item) bool {
		return item.Name == name
	})

	return idx
}

func (r *Room) empty() bool {
	return len(r.users) == 0 && len(r.disconnected) == 0
}

func (r *Room) cancelTurn() {
	stopTimer(r.turnTimer)
	r.turnTimer = nil
	r.awaiting = ""
}

func (r *Room) cancelTimers() {
	r.cancelTurn()

	stopTimer(r.pacer)
	r.pacer = nil

	for _, d := range r.disconnected {
		stopTimer(d.expiry)
		d.expiry = nil
	}
}

// restock replaces the pool and empties every collection, pending
// snapshots included.
func (r *Room) restock(pool []Item) {
	r.pool = pool
	for id := range r.selections {
		r.selections[id] = []Item{}
	}
	for _, d := range r.disconnected {
		d.selections = []Item{}
	}
}

// selectionsByName keys every collection by display name. The result is a
// copy so it can be handed to the gateway.
func (r *Room) selectionsByName() map[string][]Item {
	out := make(map[string][]Item, len(r.selections))
	for id, items := range r.selections {
		out[r.username(id)] = append([]Item{}, items...)
	}

	return out
}

func (r *Room) turnOrderNames() []string {
	names := make([]string, 0, len(r.turnOrder))
	for _, id := range r.turnOrder {
		names = append(names, r.username(id))
	}

	return names
}

func (r *Room) disconnectedList() []DisconnectedUser {
	return lo.Map(r.disconnected, func(d *departed, _ int) DisconnectedUser {
		return DisconnectedUser{
			ID:             d.ID,
			Username:       d.Username,
			DisconnectedAt: d.disconnectedAt,
		}
	})
}

func (r *Room) snapshot() GameState {
	state := GameState{
		TurnOrder:        []string{},
		CurrentTurnIndex: r.currentTurn,
		Pool:             append([]Item{}, r.pool...),
		Selections:       r.selectionsByName(),
		Started:          r.started,
		Ended:            r.ended,
	}

	if r.started {
		state.TurnOrder = r.turnOrderNames()
	}

	if id, ok := r.holder(); ok {
		state.CurrentUser = r.username(id)
	}

	return state
}

func (r *Room) summary() RoomSummary {
	return RoomSummary{
		RoomID:    r.id,
		UserCount: len(r.users),
		Users: lo.Map(r.users, func(p Participant, _ int) UserSummary {
			return UserSummary{Username: p.Username}
		}),
		Started:   r.started,
		PoolSize:  len(r.pool),
		CreatedAt: r.createdAt,
	}
}
