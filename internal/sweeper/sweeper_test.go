package sweeper_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
	"github.com/MrJamesThe3rd/ironyard/internal/listing/listingtest"
	"github.com/MrJamesThe3rd/ironyard/internal/sweeper"
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func reserved(store *listingtest.Store, start time.Time, d time.Duration) *listing.Listing {
	lease := listing.NewLease(start, d, "buyer1")
	l := &listing.Listing{
		ID:           uuid.New(),
		Reference:    "EQ-260302-" + uuid.NewString()[:6],
		Status:       listing.StatusReserved,
		Availability: listing.Available,
		Lease:        &lease,
		Title:        "Skid steer",
		CreatedAt:    start,
		UpdatedAt:    start,
	}
	store.Put(l)

	return l
}

func TestSweeper_Scenario(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)
	svc := listing.NewService(store, listing.WithClock(clk))

	owner := listing.Actor{ID: uuid.New()}

	l, err := svc.Create(ctx, owner, listing.CreateParams{Title: "Kubota KX040"})
	require.NoError(t, err)

	_, err = svc.SubmitForReview(ctx, owner, listing.ByID(l.ID))
	require.NoError(t, err)

	_, err = svc.Publish(ctx, owner, listing.ByID(l.ID))
	require.NoError(t, err)

	got, err := svc.Reserve(ctx, owner, listing.ByID(l.ID), "buyer1", 1800*time.Second)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusReserved, got.Status)
	require.NotNil(t, got.Lease)
	assert.True(t, got.Lease.Deadline.Equal(epoch.Add(1800*time.Second)))

	clk.Advance(1801 * time.Second)

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Equal(t, []uuid.UUID{l.ID}, res.ExpiredIDs)
	assert.Empty(t, res.Errors)

	after, err := store.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, after.Status)
	assert.Equal(t, listing.Available, after.Availability)
	assert.Nil(t, after.Lease)
}

func TestSweeper_Idempotent(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)

	for range 3 {
		reserved(store, epoch.Add(-time.Hour), 30*time.Minute)
	}

	live := reserved(store, epoch, time.Hour)

	s := sweeper.New(store, sweeper.WithClock(clk))

	first, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, first.ExpiredCount)
	assert.NotContains(t, first.ExpiredIDs, live.ID)

	second, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ExpiredCount)
	assert.Empty(t, second.ExpiredIDs)

	stillReserved, err := store.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusReserved, stillReserved.Status)
}

func TestSweeper_DeadlineIsInclusive(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)

	l := reserved(store, epoch.Add(-time.Hour), time.Hour)

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExpiredCount)

	clk.Advance(time.Microsecond)

	res, err = sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{l.ID}, res.ExpiredIDs)
}

func TestSweeper_RaceWithRelease(t *testing.T) {
	t.Run("ReleaseWins", func(t *testing.T) {
		ctx := context.Background()
		clk := clock.NewFake(epoch)
		store := listingtest.NewStore(clk)
		svc := listing.NewService(store, listing.WithClock(clk))
		l := reserved(store, epoch.Add(-time.Hour), 30*time.Minute)

		// The release lands between the sweeper's read and its write.
		var (
			fired      bool
			releaseErr error
		)

		store.BeforeUpdate = func(uuid.UUID) error {
			if !fired {
				fired = true
				_, releaseErr = svc.ReleaseReservation(ctx, listing.System, listing.ByID(l.ID))
			}

			return nil
		}

		res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
		require.NoError(t, err)
		require.NoError(t, releaseErr)
		assert.Equal(t, 0, res.ExpiredCount)
		assert.Empty(t, res.Errors)

		assertReleased(t, store, l.ID)
	})

	t.Run("SweeperWins", func(t *testing.T) {
		ctx := context.Background()
		clk := clock.NewFake(epoch)
		store := listingtest.NewStore(clk)
		svc := listing.NewService(store, listing.WithClock(clk))
		l := reserved(store, epoch.Add(-time.Hour), 30*time.Minute)

		// The sweep lands between the release's read and its write.
		var (
			fired    bool
			res      sweeper.Result
			sweepErr error
		)

		store.BeforeUpdate = func(uuid.UUID) error {
			if !fired {
				fired = true
				res, sweepErr = sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
			}

			return nil
		}

		_, err := svc.ReleaseReservation(ctx, listing.System, listing.ByID(l.ID))
		assert.ErrorIs(t, err, listing.ErrConflict)
		require.NoError(t, sweepErr)
		assert.Equal(t, 1, res.ExpiredCount)

		assertReleased(t, store, l.ID)
	})
}

func assertReleased(t *testing.T, store *listingtest.Store, id uuid.UUID) {
	t.Helper()

	got, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, listing.StatusPublished, got.Status)
	assert.Equal(t, listing.Available, got.Availability)
	assert.Nil(t, got.Lease)
}

func TestSweeper_RowErrorsDoNotAbort(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)

	broken := reserved(store, epoch.Add(-time.Hour), time.Minute)
	reserved(store, epoch.Add(-time.Hour), time.Minute)
	reserved(store, epoch.Add(-time.Hour), time.Minute)

	store.BeforeUpdate = func(id uuid.UUID) error {
		if id == broken.ID {
			return fmt.Errorf("%w: connection reset", listing.ErrStoreUnavailable)
		}

		return nil
	}

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ExpiredCount)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], broken.ID.String())

	// The failed row is picked up by the next run.
	store.BeforeUpdate = nil

	res, err = sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{broken.ID}, res.ExpiredIDs)
}

func TestSweeper_QueryFailureIsFatal(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)
	store.LapsedErr = listing.ErrStoreUnavailable

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, listing.ErrStoreUnavailable)
	assert.Equal(t, 0, res.ExpiredCount)
}

func TestSweeper_Batches(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)

	for range 7 {
		reserved(store, epoch.Add(-time.Hour), time.Minute)
	}

	res, err := sweeper.New(store, sweeper.WithClock(clk), sweeper.WithBatchSize(2)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExpiredCount)
}

func TestSweeper_Cancelled(t *testing.T) {
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)
	reserved(store, epoch.Add(-time.Hour), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := sweeper.New(store, sweeper.WithClock(clk)).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.ExpiredCount)
	assert.False(t, res.FinishedAt.IsZero())
}

func TestSweeper_PublishesExpiredEvents(t *testing.T) {
	ctrl := gomock.NewController(t)

	ctx := context.Background()
	clk := clock.NewFake(epoch)
	store := listingtest.NewStore(clk)
	l := reserved(store, epoch.Add(-time.Hour), time.Minute)

	events := listing.NewMockEventPublisher(ctrl)
	events.EXPECT().
		Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev listing.Event) error {
			assert.Equal(t, listing.EventExpired, ev.Type)
			assert.Equal(t, l.ID, ev.ListingID)
			assert.Equal(t, listing.StatusReserved, ev.From)
			assert.Equal(t, listing.StatusPublished, ev.To)
			assert.Equal(t, "buyer1", ev.Holder)

			return fmt.Errorf("broker down")
		})

	res, err := sweeper.New(store, sweeper.WithClock(clk), sweeper.WithEventPublisher(events)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExpiredCount)
	assert.Empty(t, res.Errors)
}
