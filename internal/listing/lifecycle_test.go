package listing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
	"github.com/MrJamesThe3rd/ironyard/internal/listing/listingtest"
	"github.com/MrJamesThe3rd/ironyard/internal/sweeper"
)

func newLifecycle(t *testing.T) (*listing.Service, *listingtest.Store, *clock.Fake) {
	t.Helper()

	clk := clock.NewFake(now)
	store := listingtest.NewStore(clk)

	return listing.NewService(store, listing.WithClock(clk)), store, clk
}

func published(t *testing.T, svc *listing.Service, actor listing.Actor) *listing.Listing {
	t.Helper()

	ctx := context.Background()

	l, err := svc.Create(ctx, actor, listing.CreateParams{Title: "JCB 3CX"})
	require.NoError(t, err)

	_, err = svc.SubmitForReview(ctx, actor, listing.ByID(l.ID))
	require.NoError(t, err)

	l, err = svc.Publish(ctx, actor, listing.ByID(l.ID))
	require.NoError(t, err)

	return l
}

func TestLifecycle_ConcurrentReserveHasOneWinner(t *testing.T) {
	svc, store, _ := newLifecycle(t)
	ctx := context.Background()
	seller := listing.Actor{ID: uuid.New()}
	l := published(t, svc, seller)

	const buyers = 16

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		failures []error
	)

	start := make(chan struct{})

	for range buyers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			<-start

			_, err := svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer", time.Hour)

			mu.Lock()
			defer mu.Unlock()

			if err == nil {
				wins++
				return
			}

			failures = append(failures, err)
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)

	for _, err := range failures {
		assert.True(t,
			errors.Is(err, listing.ErrConflict) || errors.Is(err, listing.ErrPreconditionFailed),
			"unexpected error: %v", err)
	}

	got, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusReserved, got.Status)
	require.NotNil(t, got.Lease)
}

func TestLifecycle_ReserveRequiresAvailability(t *testing.T) {
	svc, _, _ := newLifecycle(t)
	ctx := context.Background()
	seller := listing.Actor{ID: uuid.New()}
	l := published(t, svc, seller)

	_, err := svc.SetAvailability(ctx, seller, listing.ByID(l.ID), listing.Unavailable)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer1", time.Hour)
	assert.ErrorIs(t, err, listing.ErrPreconditionFailed)

	_, err = svc.SetAvailability(ctx, seller, listing.ByID(l.ID), listing.Available)
	require.NoError(t, err)

	_, err = svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer1", time.Hour)
	require.NoError(t, err)
}

func TestLifecycle_ReserveReleaseCycle(t *testing.T) {
	svc, store, clk := newLifecycle(t)
	ctx := context.Background()
	seller := listing.Actor{ID: uuid.New()}
	l := published(t, svc, seller)
	ref := l.Reference

	stored := func() *listing.Listing {
		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, ref, got.Reference)

		return got
	}

	for range 3 {
		got, err := svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer1", 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, clk.Now().Add(10*time.Minute), got.Lease.Deadline)
		assert.Equal(t, ref, got.Reference)

		// Publish does not release a reservation.
		_, err = svc.Publish(ctx, seller, listing.ByID(l.ID))
		assert.ErrorIs(t, err, listing.ErrPreconditionFailed)

		got, err = svc.ReleaseReservation(ctx, seller, listing.ByID(l.ID))
		require.NoError(t, err)
		assert.Equal(t, listing.StatusPublished, got.Status)
		assert.Nil(t, got.Lease)
		assert.Equal(t, ref, got.Reference)

		clk.Advance(time.Minute)
	}

	_, err := svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer2", time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, listing.StatusPublished, stored().Status)

	sold, err := svc.MarkSold(ctx, seller, listing.ByID(l.ID))
	require.NoError(t, err)
	assert.Equal(t, listing.StatusSold, sold.Status)
	assert.Equal(t, ref, sold.Reference)

	_, err = svc.Archive(ctx, seller, listing.ByID(l.ID))
	assert.ErrorIs(t, err, listing.ErrInvalidTransition)
	stored()

	other := published(t, svc, seller)

	archived, err := svc.Archive(ctx, seller, listing.ByID(other.ID))
	require.NoError(t, err)
	assert.Equal(t, other.Reference, archived.Reference)
	assert.NotEqual(t, ref, other.Reference)
}

func TestLifecycle_AnonymousCreateThenClaim(t *testing.T) {
	svc, _, _ := newLifecycle(t)
	ctx := context.Background()

	l, err := svc.Create(ctx, listing.Actor{}, listing.CreateParams{Title: "Scissor lift"})
	require.NoError(t, err)
	assert.False(t, l.Owned())

	// The reference alone is enough to manage an unowned listing.
	_, err = svc.SubmitForReview(ctx, listing.Actor{}, listing.ByReference(l.Reference))
	require.NoError(t, err)

	_, err = svc.SubmitForReview(ctx, listing.Actor{}, listing.ByID(l.ID))
	assert.ErrorIs(t, err, listing.ErrForbidden)

	user := listing.Actor{ID: uuid.New()}

	claimed, err := svc.ClaimOwnership(ctx, user, l.Reference)
	require.NoError(t, err)
	assert.True(t, claimed.Owned())

	// Once claimed, the reference no longer grants ownership.
	_, err = svc.WithdrawFromReview(ctx, listing.Actor{}, listing.ByReference(l.Reference))
	assert.ErrorIs(t, err, listing.ErrForbidden)

	_, err = svc.WithdrawFromReview(ctx, user, listing.ByID(l.ID))
	require.NoError(t, err)

	_, err = svc.ClaimOwnership(ctx, listing.Actor{ID: uuid.New()}, l.Reference)
	assert.ErrorIs(t, err, listing.ErrConflict)
}

func TestLifecycle_LeaseFieldsOnlyWhileReserved(t *testing.T) {
	svc, store, _ := newLifecycle(t)
	ctx := context.Background()
	seller := listing.Actor{ID: uuid.New()}
	l := published(t, svc, seller)

	check := func() {
		got, err := store.GetByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, got.Status == listing.StatusReserved, got.Lease != nil, "status %s", got.Status)
	}

	check()

	_, err := svc.Reserve(ctx, seller, listing.ByID(l.ID), "buyer1", time.Hour)
	require.NoError(t, err)
	check()

	_, err = svc.SetAvailability(ctx, seller, listing.ByID(l.ID), listing.Unavailable)
	require.NoError(t, err)
	check()

	_, err = svc.Archive(ctx, seller, listing.ByID(l.ID))
	require.NoError(t, err)
	check()
}
