/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	crand "crypto/rand"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// Rules are the settings a draft runs under.
type Rules struct {
	Quota            int
	TurnTime         time.Duration
	TurnDelay        time.Duration
	GracePeriod      time.Duration
	HostParticipates bool
	AutoReset        bool
}

// TurnEngine sequences turns within a room. All methods must run on the
// loop goroutine.
type TurnEngine struct {
	rooms  *Registry
	gw     Gateway
	timers *Scheduler
	rules  Rules
	rng    *rand.Rand
	log    zerolog.Logger
}

func NewTurnEngine(rooms *Registry, gw Gateway, timers *Scheduler, rules Rules, rng *rand.Rand, logger zerolog.Logger) *TurnEngine {
	if rng == nil {
		rng = newRand()
	}

	return &TurnEngine{
		rooms:  rooms,
		gw:     gw,
		timers: timers,
		rules:  rules,
		rng:    rng,
		log:    logger.With().Str("component", "turns").Logger(),
	}
}

func newRand() *rand.Rand {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}

	return rand.New(rand.NewChaCha8(seed))
}

// StartSession freezes a shuffled turn order and schedules the first turn.
func (e *TurnEngine) StartSession(room *Room) error {
	if room.started {
		return fail(ErrInvalidState, "Selection already started")
	}
	if len(room.users) < 2 {
		return fail(ErrInvalidState, "Need at least 2 players to start")
	}

	ids := make([]string, 0, len(room.users))
	for _, p := range room.users {
		if p.ID == room.hostID && !e.rules.HostParticipates {
			continue
		}
		ids = append(ids, p.ID)
	}

	// Fisher-Yates shuffle
	for i := len(ids) - 1; i > 0; i-- {
		j := e.rng.IntN(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}

	room.cancelTurn()
	stopTimer(room.pacer)
	room.pacer = nil

	// A room left in the lobby by auto-reset still holds the last draft.
	if room.ended {
		room.restock(e.rooms.pool.Pool())
	}

	room.turnOrder = ids
	room.currentTurn = 0
	room.started = true
	room.ended = false
	room.epoch++
	room.lastActive = e.timers.Now()

	order := room.turnOrderNames()

	e.log.Info().
		Str("room_id", room.id).
		Strs("turn_order", order).
		Bool("host_participates", e.rules.HostParticipates).
		Msg("selection started")

	e.gw.Broadcast(room.id, evtTurnOrder, TurnOrderMessage{Order: order})

	e.schedule(room)

	return nil
}

// schedule queues the next call to Advance as its own loop task, after the
// configured pacing delay.
func (e *TurnEngine) schedule(room *Room) {
	stopTimer(room.pacer)

	room.paces++
	epoch, pace := room.epoch, room.paces
	room.pacer = e.timers.After(e.rules.TurnDelay, func() {
		if !e.rooms.Lookup(room) || room.epoch != epoch || room.paces != pace {
			return
		}
		room.pacer = nil
		e.Advance(room)
	})
}

// Advance opens the next turn, or ends the session when nobody can pick.
func (e *TurnEngine) Advance(room *Room) {
	room.cancelTurn()

	if !room.started || room.ended {
		return
	}

	n := len(room.turnOrder)
	if n == 0 || len(room.pool) == 0 {
		e.end(room)
		return
	}

	idx := ((room.currentTurn % n) + n) % n

	found := false
	for range n {
		id := room.turnOrder[idx]
		if room.isActive(id) && len(room.selections[id]) < e.rules.Quota {
			found = true
			break
		}
		idx = (idx + 1) % n
	}

	room.currentTurn = idx

	if !found {
		e.end(room)
		return
	}

	holder := room.turnOrder[idx]

	room.turns++
	room.awaiting = holder
	turn := turnRef{epoch: room.epoch, turn: room.turns}
	room.turnTimer = e.timers.After(e.rules.TurnTime, func() {
		e.onTimerExpiry(room, holder, turn)
	})

	username := room.username(holder)

	e.log.Debug().
		Str("room_id", room.id).
		Str("user_id", holder).
		Str("username", username).
		Msg("turn started")

	e.gw.SendTo(holder, evtYourTurn, YourTurnMessage{Pool: append([]Item{}, room.pool...)})
	e.gw.Broadcast(room.id, evtTurnUpdate, TurnUpdateMessage{
		CurrentUser: username,
		UserID:      holder,
		Seconds:     max(1, int(e.rules.TurnTime.Round(time.Second)/time.Second)),
	})
}

// turnRef identifies one opened turn, so a timer that was cancelled after
// it had already fired can not act on a later turn of the same holder.
type turnRef struct {
	epoch int
	turn  int
}

// onTimerExpiry auto-picks for expected if their turn is still open.
func (e *TurnEngine) onTimerExpiry(room *Room, expected string, ref turnRef) {
	if !e.rooms.Lookup(room) || room.epoch != ref.epoch || room.turns != ref.turn {
		return
	}

	if holder, ok := room.holder(); !ok || holder != expected {
		return
	}

	room.turnTimer = nil

	e.log.Debug().
		Str("room_id", room.id).
		Str("user_id", expected).
		Msg("turn timed out")

	e.AutoSelect(room)
}

// SelectItem moves the named item from the pool to the turn holder.
func (e *TurnEngine) SelectItem(room *Room, identity, name string) error {
	if !room.started || room.ended {
		return fail(ErrInvalidState, "Selection not started")
	}

	if holder, ok := room.holder(); !ok || holder != identity {
		return fail(ErrNotYourTurn, "Not your turn")
	}

	idx := room.poolIndex(name)
	if idx < 0 {
		return failf(ErrItemUnavailable, "%s is not available", name)
	}

	e.take(room, identity, idx, evtItemSelected)

	return nil
}

// AutoSelect picks uniformly at random from the pool for the turn holder.
func (e *TurnEngine) AutoSelect(room *Room) {
	holder, ok := room.holder()
	if !ok || len(room.pool) == 0 {
		room.cancelTurn()
		room.currentTurn++
		e.schedule(room)
		return
	}

	e.take(room, holder, e.rng.IntN(len(room.pool)), evtAutoSelected)
}

func (e *TurnEngine) take(room *Room, identity string, idx int, event string) {
	room.cancelTurn()

	item := room.pool[idx]
	room.pool = slices.Delete(room.pool, idx, idx+1)
	room.selections[identity] = append(room.selections[identity], item)
	room.lastActive = e.timers.Now()

	username := room.username(identity)

	e.log.Info().
		Str("room_id", room.id).
		Str("user_id", identity).
		Str("username", username).
		Str("item", item.Name).
		Bool("auto", event == evtAutoSelected).
		Msg("item selected")

	e.gw.Broadcast(room.id, event, SelectionMessage{
		Item:       item,
		User:       identity,
		Username:   username,
		Selections: room.selectionsByName(),
		Pool:       append([]Item{}, room.pool...),
	})

	room.currentTurn++
	e.schedule(room)
}

// end emits the final results. The room is kept so the host can reset it.
func (e *TurnEngine) end(room *Room) {
	room.cancelTurn()
	stopTimer(room.pacer)
	room.pacer = nil

	room.ended = true

	results := room.selectionsByName()

	e.log.Info().
		Str("room_id", room.id).
		Int("participants", len(results)).
		Int("remaining", len(room.pool)).
		Msg("selection ended")

	e.gw.Broadcast(room.id, evtSelectionEnded, SelectionEndedMessage{Results: results})

	if e.rules.AutoReset {
		room.started = false
		room.turnOrder = nil
		room.currentTurn = 0
	}
}
