package fanout

import (
	"context"
	"errors"
	"sync"
	"time"

	"group-notifier/internal/models"
)

type fakeIdentities struct {
	mu      sync.Mutex
	records map[string]*models.Identity
	fail    map[string]error
	reads   int
	onRead  func(id string)
}

func newFakeIdentities(tokens map[string]string) *fakeIdentities {
	f := &fakeIdentities{records: map[string]*models.Identity{}, fail: map[string]error{}}
	for id, tok := range tokens {
		f.records[id] = &models.Identity{ID: id, DeliveryToken: tok}
	}
	return f
}

func (f *fakeIdentities) GetIdentity(ctx context.Context, id string) (*models.Identity, error) {
	if f.onRead != nil {
		f.onRead(id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeIdentities) InvalidateToken(_ context.Context, token string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, rec := range f.records {
		if rec.DeliveryToken == token {
			rec.DeliveryToken = ""
			n++
		}
	}
	return n, nil
}

func (f *fakeIdentities) token(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[id]; ok {
		return rec.DeliveryToken
	}
	return ""
}

type fakeGroups struct {
	groups map[string]*models.Group
	err    error
}

func (f *fakeGroups) GetGroup(_ context.Context, id string) (*models.Group, error) {
	if f.err != nil {
		return nil, f.err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return g, nil
}

// fakeTransport answers each token with the outcome from outcomes, defaulting
// to delivered. callErr, when set, fails every call as a whole.
type fakeTransport struct {
	mu        sync.Mutex
	batchSize int
	outcomes  map[string]models.Outcome
	callErr   error
	calls     [][]string
	payloads  []models.NotificationPayload
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) MaxBatchSize() int { return f.batchSize }

func (f *fakeTransport) Send(_ context.Context, tokens []string, payload models.NotificationPayload) ([]models.TokenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), tokens...))
	f.payloads = append(f.payloads, payload)
	if f.callErr != nil {
		return nil, f.callErr
	}
	out := make([]models.TokenResult, 0, len(tokens))
	for _, t := range tokens {
		o, ok := f.outcomes[t]
		if !ok {
			o = models.OutcomeDelivered
		}
		var err error
		if o != models.OutcomeDelivered {
			err = errors.New(string(o))
		}
		out = append(out, models.TokenResult{Token: t, Outcome: o, Err: err})
	}
	return out, nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) sentTokens() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]int{}
	for _, c := range f.calls {
		for _, t := range c {
			seen[t]++
		}
	}
	return seen
}

type fakeDedup struct {
	mu       sync.Mutex
	keys     map[string]time.Duration
	err      error
	released []string
}

func newFakeDedup() *fakeDedup { return &fakeDedup{keys: map[string]time.Duration{}} }

func (f *fakeDedup) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.keys[key]; ok {
		return false, nil
	}
	f.keys[key] = ttl
	return true, nil
}

func (f *fakeDedup) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, key)
	f.released = append(f.released, key)
	return nil
}

func noWait(context.Context, time.Duration) error { return nil }

func invitation(source, invited, group, name, by string) models.Event {
	payload := map[string]interface{}{
		"invitedUserId": invited,
		"groupId":       group,
		"groupName":     name,
	}
	if by != "" {
		payload["invitedBy"] = by
	}
	return models.Event{Type: models.EventTypeInvitation, SourceID: source, Payload: payload}
}

func groupMessage(source, group, sender, text string) models.Event {
	return models.Event{
		Type:     models.EventTypeGroupMessage,
		SourceID: source,
		Payload: map[string]interface{}{
			"groupId":  group,
			"senderId": sender,
			"text":     text,
		},
	}
}

type fakeRecorder struct {
	mu         sync.Mutex
	results    []string
	durations  int
	recipients []int
}

func (f *fakeRecorder) RecordEventProcessed(_ context.Context, eventType, result string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, eventType+":"+result)
}

func (f *fakeRecorder) RecordEventDuration(context.Context, string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.durations++
}

func (f *fakeRecorder) RecordRecipients(_ context.Context, _ string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recipients = append(f.recipients, n)
}
