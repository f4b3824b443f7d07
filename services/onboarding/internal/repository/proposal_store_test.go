package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/diagnosis/agency-portal/services/onboarding/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProposalStore(t *testing.T) (ProposalStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisProposalStore(client), mr
}

func testProposal(id string, submissionID int64) *domain.Proposal {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Proposal{
		ID:           id,
		SubmissionID: submissionID,
		CustomerID:   "b4c9a289323b",
		Email:        "user@example.com",
		Name:         "Sam",
		ProjectType:  "business_site",
		Summary:      "Five pages",
		PriceCents:   149900,
		Currency:     "usd",
		CreatedAt:    now,
		ExpiresAt:    now.Add(7 * 24 * time.Hour),
	}
}

func TestProposalStoreCreateGet(t *testing.T) {
	store, mr := newTestProposalStore(t)
	ctx := context.Background()

	p := testProposal("p-1", 7)
	require.NoError(t, store.Create(ctx, p.ID, p, time.Hour))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.CustomerID, got.CustomerID)
	assert.Equal(t, p.PriceCents, got.PriceCents)
	assert.True(t, p.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, time.Hour, mr.TTL(proposalPrefix+p.ID))

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestProposalStoreCreateRefusesExistingID(t *testing.T) {
	store, _ := newTestProposalStore(t)
	ctx := context.Background()

	p := testProposal("p-1", 7)
	require.NoError(t, store.Create(ctx, p.ID, p, time.Hour))

	other := testProposal("p-1", 8)
	other.PriceCents = 1
	require.Error(t, store.Create(ctx, other.ID, other, time.Hour))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(149900), got.PriceCents)
}

func TestProposalStoreExpires(t *testing.T) {
	store, mr := newTestProposalStore(t)
	ctx := context.Background()

	p := testProposal("p-1", 7)
	require.NoError(t, store.Create(ctx, p.ID, p, time.Minute))
	mr.FastForward(time.Minute + time.Second)

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProposalStoreDeleteOnlyOnce(t *testing.T) {
	store, _ := newTestProposalStore(t)
	ctx := context.Background()

	p := testProposal("p-1", 7)
	require.NoError(t, store.Create(ctx, p.ID, p, time.Hour))

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Delete(ctx, p.ID)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, removed)

	ok, err := store.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProposalStoreRevoke(t *testing.T) {
	store, _ := newTestProposalStore(t)
	ctx := context.Background()

	id, err := store.Revoke(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, id)

	first := testProposal("p-1", 7)
	require.NoError(t, store.Create(ctx, first.ID, first, time.Hour))

	id, err = store.Revoke(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "p-1", id)

	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Already decided proposals are not reported as revoked.
	second := testProposal("p-2", 7)
	require.NoError(t, store.Create(ctx, second.ID, second, time.Hour))
	ok, err := store.Delete(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, ok)

	id, err = store.Revoke(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, id)
}
