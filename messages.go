/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Inbound message types
const (
	msgJoin           = "join"
	msgStartSelection = "startSelection"
	msgSelectItem     = "selectItem"
	msgPlayAgain      = "playAgain"
	msgExitRoom       = "exitRoom"
)

// Outbound event names
const (
	evtError             = "error"
	evtRoomUsers         = "roomUsers"
	evtDisconnectedUsers = "disconnectedUsers"
	evtHostStatus        = "hostStatus"
	evtGameState         = "gameState"
	evtTurnOrder         = "turnOrder"
	evtTurnUpdate        = "turnUpdate"
	evtYourTurn          = "yourTurn"
	evtItemSelected      = "itemSelected"
	evtAutoSelected      = "autoSelected"
	evtSelectionEnded    = "selectionEnded"
	evtPlayAgain         = "playAgain"
	evtRoomClosed        = "roomClosed"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type" validate:"required,oneof=join startSelection selectItem playAgain exitRoom"`
	RoomID   string `json:"roomId" validate:"required,max=32"`
	Username string `json:"username,omitempty" validate:"required_if=Type join,max=32"`
	Item     string `json:"item,omitempty" validate:"required_if=Type selectItem,max=128"`
}

var validate = validator.New()

var fieldLabels = map[string]string{
	"RoomID":   "Room ID",
	"Username": "Username",
	"Item":     "Item",
}

// decodeClientMessage parses and validates a single inbound frame.
func decodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fail(ErrInvalidMessage, "Malformed message")
	}

	msg.RoomID = normalizeRoomID(msg.RoomID)
	msg.Username = strings.TrimSpace(msg.Username)
	msg.Item = strings.TrimSpace(msg.Item)

	if err := validate.Struct(msg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return ClientMessage{}, fail(ErrInvalidMessage, "Malformed message")
		}

		fe := verrs[0]
		switch {
		case fe.Field() == "Type":
			return ClientMessage{}, fail(ErrInvalidMessage, "Unknown message type")
		case fe.Tag() == "max":
			return ClientMessage{}, failf(ErrInvalidMessage, "%s is too long", fieldLabels[fe.Field()])
		case msg.Type == msgJoin:
			return ClientMessage{}, fail(ErrInvalidMessage, "Room ID and username are required")
		default:
			return ClientMessage{}, failf(ErrInvalidMessage, "%s is required", fieldLabels[fe.Field()])
		}
	}

	return msg, nil
}

// Envelope wraps every message sent to clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

type DisconnectedUser struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
}

type HostStatusMessage struct {
	IsHost  bool `json:"isHost"`
	Started bool `json:"started"`
}

// GameState lets a joining or reconnecting client catch up.
type GameState struct {
	TurnOrder        []string          `json:"turnOrder"`
	CurrentTurnIndex int               `json:"currentTurnIndex"`
	CurrentUser      string            `json:"currentUser,omitempty"`
	Pool             []Item            `json:"pool"`
	Selections       map[string][]Item `json:"selections"`
	Started          bool              `json:"started"`
	Ended            bool              `json:"ended"`
}

type TurnOrderMessage struct {
	Order []string `json:"order"`
}

type TurnUpdateMessage struct {
	CurrentUser string `json:"currentUser"`
	UserID      string `json:"userId"`
	Seconds     int    `json:"seconds"`
}

type YourTurnMessage struct {
	Pool []Item `json:"pool"`
}

// SelectionMessage is sent for both manual and automatic picks.
type SelectionMessage struct {
	Item       Item              `json:"item"`
	User       string            `json:"user"`
	Username   string            `json:"username"`
	Selections map[string][]Item `json:"selections"`
	Pool       []Item            `json:"pool"`
}

type SelectionEndedMessage struct {
	Results map[string][]Item `json:"results"`
}

type RoomClosedMessage struct {
	Message string `json:"message"`
}

// HTTP response bodies

type UserSummary struct {
	Username string `json:"username"`
}

type RoomSummary struct {
	RoomID    string        `json:"roomId"`
	UserCount int           `json:"userCount"`
	Users     []UserSummary `json:"users"`
	Started   bool          `json:"started"`
	PoolSize  int           `json:"poolSize"`
	CreatedAt time.Time     `json:"createdAt"`
}

type RoomListing struct {
	RoomID    string    `json:"roomId"`
	UserCount int       `json:"userCount"`
	Started   bool      `json:"started"`
	CreatedAt time.Time `json:"createdAt"`
}
