package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/quiet-hours/internal/model"
	apperrors "github.com/jwalitptl/quiet-hours/pkg/errors"
)

type countingUsers struct {
	calls int
	users map[uuid.UUID]model.Recipient
}

func (c *countingUsers) GetRecipient(_ context.Context, id uuid.UUID) (*model.Recipient, error) {
	c.calls++
	r, ok := c.users[id]
	if !ok {
		return nil, apperrors.NewRecipientNotFound(id, nil)
	}
	return &r, nil
}

func TestLookup_CachesHits(t *testing.T) {
	id := uuid.New()
	repo := &countingUsers{users: map[uuid.UUID]model.Recipient{
		id: {UserID: id, Email: "grace@example.com", Name: "Grace"},
	}}
	svc := NewService(repo, time.Minute)

	for i := 0; i < 3; i++ {
		r, err := svc.Lookup(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, "Grace", r.Name)
	}
	assert.Equal(t, 1, repo.calls)
}

func TestLookup_MissesAreNotCached(t *testing.T) {
	repo := &countingUsers{users: map[uuid.UUID]model.Recipient{}}
	svc := NewService(repo, time.Minute)
	id := uuid.New()

	_, err := svc.Lookup(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.RecipientNotFound)

	repo.users[id] = model.Recipient{UserID: id, Email: "late@example.com"}
	r, err := svc.Lookup(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "late", r.Name)
	assert.Equal(t, 2, repo.calls)
}

func TestLookup_EmptyEmail(t *testing.T) {
	id := uuid.New()
	repo := &countingUsers{users: map[uuid.UUID]model.Recipient{id: {UserID: id}}}

	_, err := NewService(repo, 0).Lookup(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.RecipientNotFound)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "ada", DisplayName("ada@example.com"))
	assert.Equal(t, "nodomain", DisplayName("nodomain"))
	assert.Equal(t, "@x", DisplayName("@x"))
}
