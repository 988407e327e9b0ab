package fanout

import (
	"context"
	"errors"
	"testing"
	"time"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifierFixture struct {
	identities *fakeIdentities
	groups     *fakeGroups
	transport  *fakeTransport
	dedup      *fakeDedup
	notifier   *Notifier
}

func newNotifierFixture(t *testing.T, withDedup bool) *notifierFixture {
	t.Helper()
	f := &notifierFixture{
		identities: newFakeIdentities(map[string]string{
			"uA": "tok-A",
			"u1": "tok_u1",
			"u2": "tok_u2",
			"u3": "tok_u3",
		}),
		groups: &fakeGroups{groups: map[string]*models.Group{
			"g1": {ID: "g1", Name: "Hikers", MemberIDs: []string{"u1", "u2", "u3"}},
		}},
		transport: &fakeTransport{batchSize: 500},
	}
	log := logger.NewTestLogger(t)
	dispatcher := NewDispatcher(f.transport, f.identities, DefaultDispatcherConfig, log)
	dispatcher.wait = noWait

	opts := NotifierOptions{
		Resolver:   NewResolver(f.groups, log),
		Lookup:     NewTokenLookup(f.identities, 4, log),
		Dispatcher: dispatcher,
		Logger:     log,
	}
	if withDedup {
		f.dedup = newFakeDedup()
		opts.Dedup = f.dedup
	}

	n, err := NewNotifier(opts)
	require.NoError(t, err)
	f.notifier = n
	return f
}

func TestNotify_Invitation(t *testing.T) {
	f := newNotifierFixture(t, false)

	report, err := f.notifier.Notify(context.Background(), invitation("inv1", "uA", "g1", "Hikers", "u1"))
	require.NoError(t, err)

	require.Equal(t, 1, f.transport.callCount())
	assert.Equal(t, []string{"tok-A"}, f.transport.calls[0])
	assert.Equal(t, models.NotificationPayload{
		Title: "Group Invitation",
		Body:  `You have been invited to join "Hikers"`,
		Data:  map[string]string{"type": "invitation", "groupId": "g1"},
	}, f.transport.payloads[0])

	assert.NotEmpty(t, report.InvocationID)
	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, 1, report.Delivered)
}

func TestNotify_GroupMessageSkipsSender(t *testing.T) {
	f := newNotifierFixture(t, false)

	report, err := f.notifier.Notify(context.Background(), groupMessage("m1", "g1", "u2", "hello"))
	require.NoError(t, err)

	require.Equal(t, 1, f.transport.callCount())
	assert.ElementsMatch(t, []string{"tok_u1", "tok_u3"}, f.transport.calls[0])
	assert.Equal(t, "New Group Message", f.transport.payloads[0].Title)
	assert.Equal(t, "hello", f.transport.payloads[0].Body)
	assert.Equal(t, 2, report.Recipients)
	assert.Equal(t, 2, report.Tokens)
	assert.Equal(t, 2, report.Delivered)
}

func TestNotify_NoRecipientsIsSilent(t *testing.T) {
	f := newNotifierFixture(t, false)
	f.groups.groups["solo"] = &models.Group{ID: "solo", MemberIDs: []string{"u2"}}

	report, err := f.notifier.Notify(context.Background(), groupMessage("m1", "solo", "u2", "anyone?"))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Recipients)
	assert.Equal(t, 0, f.transport.callCount())
}

func TestNotify_NoTokensIsSilent(t *testing.T) {
	f := newNotifierFixture(t, false)

	report, err := f.notifier.Notify(context.Background(), invitation("inv1", "nobody", "g1", "Hikers", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Recipients)
	assert.Equal(t, 0, report.Tokens)
	assert.Equal(t, 0, f.transport.callCount())
}

func TestNotify_SharedTokenSentOnce(t *testing.T) {
	f := newNotifierFixture(t, false)
	f.identities.records["u3"].DeliveryToken = "tok_u1"

	report, err := f.notifier.Notify(context.Background(), groupMessage("m1", "g1", "u2", "hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{"tok_u1"}, f.transport.calls[0])
	assert.Equal(t, 1, report.Tokens)
}

func TestNotify_InvalidTokenIsCleared(t *testing.T) {
	f := newNotifierFixture(t, false)
	f.transport.outcomes = map[string]models.Outcome{"tok_u3": models.OutcomeInvalidToken}

	report, err := f.notifier.Notify(context.Background(), groupMessage("m1", "g1", "u2", "hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Invalidated)
	assert.Equal(t, "", f.identities.token("u3"))
	assert.Equal(t, "tok_u1", f.identities.token("u1"))
}

func TestNotify_StoreFailureIsReturned(t *testing.T) {
	f := newNotifierFixture(t, true)
	f.groups.err = errors.New("connection refused")

	_, err := f.notifier.Notify(context.Background(), groupMessage("m1", "g1", "u2", "hello"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []string{"notify:dedup:group_message:m1"}, f.dedup.released)
}

func TestNotify_UnknownTypeRejected(t *testing.T) {
	f := newNotifierFixture(t, false)

	_, err := f.notifier.Notify(context.Background(), models.Event{Type: "reaction", SourceID: "x"})
	assert.ErrorIs(t, err, models.ErrUnknownEventType)
	assert.Equal(t, 0, f.transport.callCount())
}

func TestNotify_DuplicateEventSkipped(t *testing.T) {
	f := newNotifierFixture(t, true)
	event := groupMessage("m1", "g1", "u2", "hello")

	first, err := f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, f.transport.callCount())
	assert.Equal(t, DefaultDedupTTL, f.dedup.keys["notify:dedup:group_message:m1"])
}

func TestNotify_DedupFailsOpen(t *testing.T) {
	f := newNotifierFixture(t, true)
	f.dedup.err = errors.New("redis: connection refused")
	event := groupMessage("m1", "g1", "u2", "hello")

	for i := 0; i < 2; i++ {
		report, err := f.notifier.Notify(context.Background(), event)
		require.NoError(t, err)
		assert.False(t, report.Duplicate)
	}
	assert.Equal(t, 2, f.transport.callCount())
}

func TestNotify_OutageReleasesClaim(t *testing.T) {
	f := newNotifierFixture(t, true)
	f.transport.callErr = errors.New("503 service unavailable")
	event := groupMessage("m1", "g1", "u2", "hello")

	report, err := f.notifier.Notify(context.Background(), event)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportOutage)
	assert.Equal(t, 2, report.Dropped)
	assert.Empty(t, f.dedup.keys)

	// the redelivered event is processed again once the transport recovers
	f.transport.callErr = nil
	report, err = f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, report.Duplicate)
	assert.Equal(t, 2, report.Delivered)
}

func TestNewNotifier_RequiresStages(t *testing.T) {
	_, err := NewNotifier(NotifierOptions{})
	assert.Error(t, err)
}

func TestNewNotifier_Defaults(t *testing.T) {
	f := newNotifierFixture(t, false)
	assert.Equal(t, 24*time.Hour, f.notifier.dedupTTL)
	assert.Equal(t, "notify:dedup:", f.notifier.dedupPrefix)
}

func TestNotify_RecordsOutcomes(t *testing.T) {
	f := newNotifierFixture(t, true)
	rec := &fakeRecorder{}
	f.notifier.recorder = rec
	event := groupMessage("m1", "g1", "u2", "hello")

	_, err := f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	_, err = f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	_, err = f.notifier.Notify(context.Background(), models.Event{Type: "reaction", SourceID: "x"})
	require.Error(t, err)

	assert.Equal(t, []string{
		"group_message:processed",
		"group_message:duplicate",
		"reaction:rejected",
	}, rec.results)
	assert.Equal(t, 1, rec.durations)
	assert.Equal(t, []int{2}, rec.recipients)
}

func TestNotify_CancelledLookupReleasesClaim(t *testing.T) {
	f := newNotifierFixture(t, true)
	event := groupMessage("m1", "g1", "u2", "hello")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.identities.onRead = func(string) { cancel() }

	report, err := f.notifier.Notify(ctx, event)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Tokens)
	assert.Equal(t, 0, f.transport.callCount())
	assert.Empty(t, f.dedup.keys)
	assert.Equal(t, []string{"notify:dedup:group_message:m1"}, f.dedup.released)

	// the redelivered event is not mistaken for a duplicate
	f.identities.onRead = nil
	report, err = f.notifier.Notify(context.Background(), event)
	require.NoError(t, err)
	assert.False(t, report.Duplicate)
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, f.transport.callCount())
}
