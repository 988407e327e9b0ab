package models

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the domain event that triggered a notification. The
// string value is also sent to the mobile client as data.type.
type EventType string

const (
	EventTypeInvitation   EventType = "invitation"
	EventTypeGroupMessage EventType = "group_message"
)

// EventTypes lists every supported event type.
var EventTypes = []EventType{EventTypeInvitation, EventTypeGroupMessage}

func (t EventType) Valid() bool {
	switch t {
	case EventTypeInvitation, EventTypeGroupMessage:
		return true
	}
	return false
}

// Event is the trigger record handed to the notifier by an intake adapter.
type Event struct {
	Type     EventType              `json:"type"`
	SourceID string                 `json:"sourceId"`
	ActorID  string                 `json:"actorId,omitempty"`
	Payload  map[string]interface{} `json:"payload"`
}

type InvitationPayload struct {
	InvitedUserID string `json:"invitedUserId"`
	GroupID       string `json:"groupId"`
	GroupName     string `json:"groupName"`
	InvitedBy     string `json:"invitedBy,omitempty"`
}

type GroupMessagePayload struct {
	GroupID  string `json:"groupId"`
	SenderID string `json:"senderId"`
	Text     string `json:"text"`
}

// Invitation decodes the payload of an invitation event.
func (e Event) Invitation() (*InvitationPayload, error) {
	if e.Type != EventTypeInvitation {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrInvalidEvent, EventTypeInvitation, e.Type)
	}
	var p InvitationPayload
	if err := decodePayload(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GroupMessage decodes the payload of a group message event.
func (e Event) GroupMessage() (*GroupMessagePayload, error) {
	if e.Type != EventTypeGroupMessage {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrInvalidEvent, EventTypeGroupMessage, e.Type)
	}
	var p GroupMessagePayload
	if err := decodePayload(e.Payload, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Actor returns the identity that caused the event. An explicit ActorID wins
// over the payload fields.
func (e Event) Actor() string {
	if e.ActorID != "" {
		return e.ActorID
	}
	switch e.Type {
	case EventTypeInvitation:
		if v, ok := e.Payload["invitedBy"].(string); ok {
			return v
		}
	case EventTypeGroupMessage:
		if v, ok := e.Payload["senderId"].(string); ok {
			return v
		}
	}
	return ""
}

// DedupKey identifies redeliveries of the same event.
func (e Event) DedupKey() string {
	if e.SourceID == "" {
		return ""
	}
	return string(e.Type) + ":" + e.SourceID
}

func decodePayload(payload map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrInvalidEvent, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrInvalidEvent, err)
	}
	return nil
}
