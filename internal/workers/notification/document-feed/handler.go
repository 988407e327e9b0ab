// Package documentfeed turns document-created notifications into events.
package documentfeed

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"group-notifier/internal/common/events"
	"group-notifier/internal/common/logger"
	"group-notifier/internal/common/metrics"
	"group-notifier/internal/models"
)

const (
	collectionInvitations = "group_invitations"
	collectionGroups      = "groups"
	subcollectionMessages = "messages"
)

// ErrIgnoredPath marks documents that do not trigger notifications.
var ErrIgnoredPath = stderrors.New("document path does not trigger notifications")

// DocumentCreated is one message of the change feed.
type DocumentCreated struct {
	Path string                 `json:"path"`
	Data map[string]interface{} `json:"data"`
}

type Notifier interface {
	Notify(ctx context.Context, event models.Event) (*models.Report, error)
}

type Handler struct {
	notifier Notifier
	timeout  time.Duration
	logger   logger.Logger
}

func NewHandler(notifier Notifier, timeout time.Duration, log logger.Logger) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		notifier: notifier,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"component": "document-feed"}),
	}
}

// HandleMessage decodes a feed message and notifies for it. Documents outside
// the watched collections are skipped without error. Malformed documents and
// invalid events come back as events.Permanent; outages and store failures
// are returned as is so the message is redelivered.
func (h *Handler) HandleMessage(ctx context.Context, data []byte) error {
	var doc DocumentCreated
	if err := json.Unmarshal(data, &doc); err != nil {
		metrics.FeedMessages.WithLabelValues("malformed").Inc()
		return events.Permanent(fmt.Errorf("decode document message: %w", err))
	}

	event, err := EventFromDocument(doc)
	if stderrors.Is(err, ErrIgnoredPath) {
		metrics.FeedMessages.WithLabelValues("ignored").Inc()
		h.logger.Debug("document ignored", map[string]interface{}{"path": doc.Path})
		return nil
	}
	if err != nil {
		metrics.FeedMessages.WithLabelValues("malformed").Inc()
		return events.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if _, err := h.notifier.Notify(ctx, event); err != nil {
		err = fmt.Errorf("notify for %s: %w", doc.Path, err)
		if stderrors.Is(err, models.ErrInvalidEvent) || stderrors.Is(err, models.ErrUnknownEventType) {
			metrics.FeedMessages.WithLabelValues("rejected").Inc()
			return events.Permanent(err)
		}
		metrics.FeedMessages.WithLabelValues("failed").Inc()
		return err
	}
	metrics.FeedMessages.WithLabelValues("processed").Inc()
	return nil
}

// EventFromDocument maps a created document onto the event it triggers:
//
//	group_invitations/{invitationId}       -> invitation
//	groups/{groupId}/messages/{messageId}  -> group_message
//
// A full resource name containing "/documents/" is accepted as well.
func EventFromDocument(doc DocumentCreated) (models.Event, error) {
	segments := splitPath(doc.Path)
	payload := make(map[string]interface{}, len(doc.Data)+1)
	for k, v := range doc.Data {
		payload[k] = v
	}

	switch {
	case len(segments) == 2 && segments[0] == collectionInvitations:
		event := models.Event{
			Type:     models.EventTypeInvitation,
			SourceID: segments[1],
			Payload:  payload,
		}
		if by, ok := payload["invitedBy"].(string); ok {
			event.ActorID = by
		}
		return event, nil

	case len(segments) == 4 && segments[0] == collectionGroups && segments[2] == subcollectionMessages:
		// the path is authoritative for the group
		payload["groupId"] = segments[1]
		event := models.Event{
			Type:     models.EventTypeGroupMessage,
			SourceID: segments[1] + "/" + segments[3],
			Payload:  payload,
		}
		if sender, ok := payload["senderId"].(string); ok {
			event.ActorID = sender
		}
		return event, nil
	}

	return models.Event{}, fmt.Errorf("%w: %q", ErrIgnoredPath, doc.Path)
}

func splitPath(path string) []string {
	if i := strings.Index(path, "/documents/"); i >= 0 {
		path = path[i+len("/documents/"):]
	}
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
