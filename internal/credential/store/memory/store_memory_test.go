package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotgate/internal/credential/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

func TestTokenStoreConsume(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	require.NoError(t, store.Save(ctx, models.LegacyToken{
		ID: "tok", VoterIDs: []id.VoterID{"v1"}, TokenType: models.TokenIndividual,
	}))

	t.Run("consume flips used and records the voter", func(t *testing.T) {
		at := time.Now()
		require.NoError(t, store.Consume(ctx, "tok", "v1", at))

		tok, err := store.Find(ctx, "tok")
		require.NoError(t, err)
		assert.True(t, tok.Used)
		require.NotNil(t, tok.UsedAt)
		assert.Equal(t, at, tok.UsedBy["v1"])
	})

	t.Run("second consume loses", func(t *testing.T) {
		assert.ErrorIs(t, store.Consume(ctx, "tok", "v2", time.Now()), sentinel.ErrAlreadyUsed)
	})

	t.Run("missing token is not found", func(t *testing.T) {
		assert.ErrorIs(t, store.Consume(ctx, "ghost", "v1", time.Now()), sentinel.ErrNotFound)
	})
}

func TestTokenStoreMarkUsedBy(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	require.NoError(t, store.Save(ctx, models.LegacyToken{
		ID: "tok", VoterIDs: []id.VoterID{"v1", "v2"}, TokenType: models.TokenCollective,
	}))

	require.NoError(t, store.MarkUsedBy(ctx, "tok", "v1", time.Now()))
	require.NoError(t, store.MarkUsedBy(ctx, "tok", "v2", time.Now()))

	tok, err := store.Find(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, tok.Used)
	assert.Len(t, tok.UsedBy, 2)
}

func TestLinkStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewLinkStore()

	t.Run("unified link keeps its shape", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, models.UnifiedLink{
			ID: "u1", CategoryID: "cat", Active: true,
		}))

		link, err := store.Find(ctx, "u1")
		require.NoError(t, err)
		_, ok := link.(models.UnifiedLink)
		assert.True(t, ok)
	})

	t.Run("particular link keeps its entries", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, models.ParticularLink{
			ID: "p1", CategoryID: "cat", Active: true,
			VoterEntries: []models.VoterEntry{{VoterID: "v1", PersonalToken: "secret"}},
		}))

		link, err := store.Find(ctx, "p1")
		require.NoError(t, err)
		particular, ok := link.(models.ParticularLink)
		require.True(t, ok)
		entry, found := particular.EntryFor("secret")
		assert.True(t, found)
		assert.Equal(t, id.VoterID("v1"), entry.VoterID)
	})

	t.Run("mark used by and deactivate work across shapes", func(t *testing.T) {
		require.NoError(t, store.MarkUsedBy(ctx, "u1", "v1", time.Now()))
		require.NoError(t, store.Deactivate(ctx, "p1"))

		link, err := store.Find(ctx, "u1")
		require.NoError(t, err)
		assert.Contains(t, link.(models.UnifiedLink).UsedBy, id.VoterID("v1"))

		link, err = store.Find(ctx, "p1")
		require.NoError(t, err)
		assert.False(t, link.(models.ParticularLink).Active)
	})
}
