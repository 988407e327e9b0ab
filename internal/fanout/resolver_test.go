package fanout

import (
	"context"
	"errors"
	"testing"

	"group-notifier/internal/common/logger"
	"group-notifier/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	groups := &fakeGroups{groups: map[string]*models.Group{
		"g1": {ID: "g1", Name: "Hikers", MemberIDs: []string{"u1", "u2", "u3", "u1"}},
	}}
	r := NewResolver(groups, logger.NewTestLogger(t))

	tests := []struct {
		name  string
		event models.Event
		want  []string
	}{
		{
			name:  "invitation targets the invited user",
			event: invitation("inv1", "u9", "g1", "Hikers", "u2"),
			want:  []string{"u9"},
		},
		{
			name:  "self invite notifies nobody",
			event: invitation("inv2", "u2", "g1", "Hikers", "u2"),
			want:  []string{},
		},
		{
			name:  "group message excludes the sender and collapses duplicates",
			event: groupMessage("m1", "g1", "u2", "hi"),
			want:  []string{"u1", "u3"},
		},
		{
			name:  "sender outside the group changes nothing",
			event: groupMessage("m2", "g1", "u7", "hi"),
			want:  []string{"u1", "u2", "u3"},
		},
		{
			name:  "missing group resolves to nobody",
			event: groupMessage("m3", "gone", "u2", "hi"),
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestResolver_ExplicitActorWins(t *testing.T) {
	groups := &fakeGroups{groups: map[string]*models.Group{
		"g1": {ID: "g1", MemberIDs: []string{"u1", "u2"}},
	}}
	r := NewResolver(groups, logger.NewNoOpLogger())

	event := groupMessage("m1", "g1", "u2", "hi")
	event.ActorID = "u1"

	got, err := r.Resolve(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, got.Sorted())
}

func TestResolver_StoreFailureIsReturned(t *testing.T) {
	storeErr := errors.New("connection refused")
	r := NewResolver(&fakeGroups{err: storeErr}, logger.NewNoOpLogger())

	_, err := r.Resolve(context.Background(), groupMessage("m1", "g1", "u2", "hi"))
	require.Error(t, err)
	assert.ErrorIs(t, err, storeErr)
}

func TestResolver_UnknownType(t *testing.T) {
	r := NewResolver(&fakeGroups{}, logger.NewNoOpLogger())

	_, err := r.Resolve(context.Background(), models.Event{Type: "reaction", SourceID: "x"})
	assert.ErrorIs(t, err, models.ErrUnknownEventType)
}
