package fanout

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"
)

// RecipientSet is a set of identity ids.
type RecipientSet map[string]struct{}

func NewRecipientSet(ids ...string) RecipientSet {
	s := make(RecipientSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Add ignores empty ids.
func (s RecipientSet) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

func (s RecipientSet) Remove(id string) { delete(s, id) }

func (s RecipientSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s RecipientSet) Len() int { return len(s) }

// Sorted returns the ids in lexical order.
func (s RecipientSet) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Resolver computes who should be notified about an event. The actor is
// never a recipient.
type Resolver struct {
	groups GroupStore
	logger logger.Logger
}

func NewResolver(groups GroupStore, log logger.Logger) *Resolver {
	return &Resolver{groups: groups, logger: log}
}

// Resolve returns the recipients of the event. A group that no longer exists
// resolves to an empty set. Any other store failure is returned.
func (r *Resolver) Resolve(ctx context.Context, event models.Event) (RecipientSet, error) {
	var recipients RecipientSet

	switch event.Type {
	case models.EventTypeInvitation:
		p, err := event.Invitation()
		if err != nil {
			return nil, err
		}
		recipients = NewRecipientSet(p.InvitedUserID)

	case models.EventTypeGroupMessage:
		p, err := event.GroupMessage()
		if err != nil {
			return nil, err
		}
		group, err := r.groups.GetGroup(ctx, p.GroupID)
		if errors.Is(err, models.ErrNotFound) {
			r.logger.Warn("group not found, nobody to notify", map[string]interface{}{
				"groupId":  p.GroupID,
				"sourceId": event.SourceID,
			})
			return NewRecipientSet(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("load group %s: %w", p.GroupID, err)
		}
		recipients = NewRecipientSet(group.MemberIDs...)

	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownEventType, event.Type)
	}

	recipients.Remove(event.Actor())
	return recipients, nil
}
