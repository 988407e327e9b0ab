// Package validation checks trigger events against per-type JSON schemas
// before any notification logic runs.
package validation

import (
	"fmt"
	"strings"

	"group-notifier/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema defines the structure of an object schema.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	// Type is a JSON schema type name or a list of them.
	Type        interface{} `json:"type"`
	Description string      `json:"description,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
	MinLength   *int        `json:"minLength,omitempty"`
	MaxLength   *int        `json:"maxLength,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (r *ValidationResult) String() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

func intPtr(i int) *int { return &i }

var nullableString = []string{"string", "null"}

// EnvelopeSchema describes the fields shared by every event.
func EnvelopeSchema() JSONSchema {
	types := make([]string, len(models.EventTypes))
	for i, t := range models.EventTypes {
		types[i] = string(t)
	}
	return JSONSchema{
		Type:     "object",
		Required: []string{"type", "sourceId", "payload"},
		Properties: map[string]Property{
			"type":     {Type: "string", Enum: types},
			"sourceId": {Type: "string", MinLength: intPtr(1), MaxLength: intPtr(512)},
			"actorId":  {Type: "string"},
			"payload":  {Type: "object"},
		},
		AdditionalProperties: false,
	}
}

func InvitationSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"invitedUserId", "groupId"},
		Properties: map[string]Property{
			"invitedUserId": {Type: "string", Description: "Identity being invited", MinLength: intPtr(1)},
			"groupId":       {Type: "string", Description: "Group the invitation is for", MinLength: intPtr(1)},
			"groupName":     {Type: nullableString, Description: "Display name used in the notification body"},
			"invitedBy":     {Type: nullableString, Description: "Identity that sent the invitation"},
		},
		AdditionalProperties: true,
	}
}

func GroupMessageSchema() JSONSchema {
	return JSONSchema{
		Type:     "object",
		Required: []string{"groupId", "senderId"},
		Properties: map[string]Property{
			"groupId":  {Type: "string", Description: "Group the message was posted to", MinLength: intPtr(1)},
			"senderId": {Type: "string", Description: "Identity that posted the message", MinLength: intPtr(1)},
			"text":     {Type: nullableString, Description: "Message text, may be empty"},
		},
		AdditionalProperties: true,
	}
}

// EventValidator validates events with schemas compiled once.
type EventValidator struct {
	envelope *gojsonschema.Schema
	payloads map[models.EventType]*gojsonschema.Schema
}

func NewEventValidator() (*EventValidator, error) {
	envelope, err := compile(EnvelopeSchema())
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}

	payloadSchemas := map[models.EventType]JSONSchema{
		models.EventTypeInvitation:   InvitationSchema(),
		models.EventTypeGroupMessage: GroupMessageSchema(),
	}

	v := &EventValidator{envelope: envelope, payloads: make(map[models.EventType]*gojsonschema.Schema)}
	for t, s := range payloadSchemas {
		compiled, err := compile(s)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t, err)
		}
		v.payloads[t] = compiled
	}
	return v, nil
}

// Validate returns nil for a well-formed event. Unknown types wrap
// models.ErrUnknownEventType, every other problem wraps models.ErrInvalidEvent.
func (v *EventValidator) Validate(event models.Event) error {
	if !event.Type.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownEventType, event.Type)
	}

	if res, err := check(v.envelope, event); err != nil {
		return err
	} else if !res.Valid {
		return fmt.Errorf("%w: %s", models.ErrInvalidEvent, res.String())
	}

	schema, ok := v.payloads[event.Type]
	if !ok {
		return fmt.Errorf("%w: no schema for %q", models.ErrUnknownEventType, event.Type)
	}
	res, err := check(schema, event.Payload)
	if err != nil {
		return err
	}
	if !res.Valid {
		return fmt.Errorf("%w: payload: %s", models.ErrInvalidEvent, res.String())
	}
	return nil
}

func compile(schema JSONSchema) (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}

func check(schema *gojsonschema.Schema, doc interface{}) (*ValidationResult, error) {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidEvent, err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}
