package fanout

import (
	"fmt"
	"strings"

	"group-notifier/internal/models"
)

const (
	DataKeyType    = "type"
	DataKeyGroupID = "groupId"
)

type template struct {
	title       string
	bodyFormat  string // %s is the event's subject text
	defaultBody string
}

var templates = map[models.EventType]template{
	models.EventTypeInvitation: {
		title:       "Group Invitation",
		bodyFormat:  `You have been invited to join "%s"`,
		defaultBody: "You have been invited to join a group",
	},
	models.EventTypeGroupMessage: {
		title:       "New Group Message",
		bodyFormat:  "%s",
		defaultBody: "You have a new message",
	},
}

// BuildPayload renders the push payload for an event. It has no side effects.
func BuildPayload(event models.Event) (models.NotificationPayload, error) {
	tmpl, ok := templates[event.Type]
	if !ok {
		return models.NotificationPayload{}, fmt.Errorf("%w: %q", models.ErrUnknownEventType, event.Type)
	}

	var subject, groupID string
	switch event.Type {
	case models.EventTypeInvitation:
		p, err := event.Invitation()
		if err != nil {
			return models.NotificationPayload{}, err
		}
		subject, groupID = p.GroupName, p.GroupID
	case models.EventTypeGroupMessage:
		p, err := event.GroupMessage()
		if err != nil {
			return models.NotificationPayload{}, err
		}
		subject, groupID = p.Text, p.GroupID
	}

	body := tmpl.defaultBody
	if strings.TrimSpace(subject) != "" {
		body = fmt.Sprintf(tmpl.bodyFormat, subject)
	}

	return models.NotificationPayload{
		Title: tmpl.title,
		Body:  body,
		Data: map[string]string{
			DataKeyType:    string(event.Type),
			DataKeyGroupID: groupID,
		},
	}, nil
}
