/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// record is one event handed to the gateway. Exactly one of room or conn
// is set.
type record struct {
	room    string
	conn    string
	event   string
	payload any
}

// recorder is a Gateway that keeps everything it is asked to deliver.
type recorder struct {
	mu      sync.Mutex
	records []record
	subs    map[string]string
	closed  []string
}

func newRecorder() *recorder {
	return &recorder{subs: make(map[string]string)}
}

func (r *recorder) Subscribe(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs[connID] = roomID
}

func (r *recorder) Broadcast(roomID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, record{room: roomID, event: event, payload: payload})
}

func (r *recorder) SendTo(connID, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, record{conn: connID, event: event, payload: payload})
}

func (r *recorder) CloseRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = append(r.closed, roomID)
	for conn, room := range r.subs {
		if room == roomID {
			delete(r.subs, conn)
		}
	}
}

func (r *recorder) events(event string) []record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []record
	for _, rec := range r.records {
		if rec.event == event {
			out = append(out, rec)
		}
	}

	return out
}

func (r *recorder) sentTo(conn, event string) []record {
	var out []record
	for _, rec := range r.events(event) {
		if rec.conn == conn {
			out = append(out, rec)
		}
	}

	return out
}

func (r *recorder) lastError(conn string) string {
	errs := r.sentTo(conn, evtError)
	if len(errs) == 0 {
		return ""
	}

	return errs[len(errs)-1].payload.(ErrorMessage).Message
}

func (r *recorder) wasClosed(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.closed {
		if id == roomID {
			return true
		}
	}

	return false
}

// harness runs the real loop against a fake clock and a recording gateway.
type harness struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	loop    *Loop
	gw      *recorder
	rooms   *Registry
	engine  *TurnEngine
	members *Membership
	svc     *Service
}

func testRules() Rules {
	return Rules{
		Quota:            1,
		TurnTime:         10 * time.Second,
		TurnDelay:        0,
		GracePeriod:      5 * time.Minute,
		HostParticipates: true,
		AutoReset:        false,
	}
}

func testPool(names ...string) StaticPool {
	pool := make(StaticPool, 0, len(names))
	for _, name := range names {
		pool = append(pool, Item{Name: name})
	}

	return pool
}

func newHarness(t *testing.T, rules Rules, pool StaticPool) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := clockwork.NewFakeClock()
	loop := NewLoop(256)
	go loop.Run(ctx)

	logger := zerolog.Nop()
	timers := NewScheduler(clock, loop)
	gw := newRecorder()
	rooms := NewRegistry(pool, clock, logger)
	engine := NewTurnEngine(rooms, gw, timers, rules, rand.New(rand.NewPCG(1, 2)), logger)
	members := NewMembership(rooms, engine, gw, timers, pool, rules, logger)
	svc := NewService(rooms, engine, members, gw, timers, logger)

	return &harness{
		t:       t,
		clock:   clock,
		loop:    loop,
		gw:      gw,
		rooms:   rooms,
		engine:  engine,
		members: members,
		svc:     svc,
	}
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.t.Helper()

	require.NoError(h.t, h.loop.Do(context.Background(), fn))
}

// send dispatches a client message as the gateway would.
func (h *harness) send(conn string, msg ClientMessage) {
	h.t.Helper()

	msg.RoomID = normalizeRoomID(msg.RoomID)
	h.do(func() {
		h.svc.Handle(conn, msg)
	})
}

func (h *harness) join(conn, roomID, username string) {
	h.t.Helper()

	h.send(conn, ClientMessage{Type: msgJoin, RoomID: roomID, Username: username})
}

func (h *harness) room(id string) *Room {
	h.t.Helper()

	var (
		room *Room
		ok   bool
	)
	h.do(func() {
		room, ok = h.rooms.Get(id)
	})
	require.True(h.t, ok, "room %s should exist", id)

	return room
}

func (h *harness) holder(room *Room) string {
	var id string
	h.do(func() {
		id, _ = room.holder()
	})

	return id
}

// waitTurn blocks until some participant holds the turn and returns them.
func (h *harness) waitTurn(room *Room) string {
	h.t.Helper()

	var id string
	require.Eventually(h.t, func() bool {
		id = h.holder(room)
		return id != ""
	}, waitFor, time.Millisecond)

	return id
}

// waitTurnOther blocks until the turn moves to someone other than prev.
func (h *harness) waitTurnOther(room *Room, prev string) string {
	h.t.Helper()

	var id string
	require.Eventually(h.t, func() bool {
		id = h.holder(room)
		return id != "" && id != prev
	}, waitFor, time.Millisecond)

	return id
}

func (h *harness) waitEnded(room *Room) {
	h.t.Helper()

	require.Eventually(h.t, func() bool {
		var ended bool
		h.do(func() {
			ended = room.ended
		})
		return ended
	}, waitFor, time.Millisecond)
}

func (h *harness) selections(room *Room, id string) []string {
	var names []string
	h.do(func() {
		for _, item := range room.selections[id] {
			names = append(names, item.Name)
		}
	})

	return names
}

func (h *harness) poolNames(room *Room) []string {
	var names []string
	h.do(func() {
		for _, item := range room.pool {
			names = append(names, item.Name)
		}
	})

	return names
}

// conserved checks that no item was lost or duplicated.
func (h *harness) conserved(room *Room, initial StaticPool) {
	h.t.Helper()

	var seen []string
	h.do(func() {
		for _, item := range room.pool {
			seen = append(seen, item.Name)
		}
		for _, items := range room.selections {
			for _, item := range items {
				seen = append(seen, item.Name)
			}
		}
	})

	want := make([]string, 0, len(initial))
	for _, item := range initial {
		want = append(want, item.Name)
	}

	require.ElementsMatch(h.t, want, seen)
}
