// Package sweeper reverts reservations whose lease has lapsed.
//
// A run evaluates every candidate against a single point in time and writes
// each row with its own conditional update, so runs may overlap with each
// other or with user requests. A row that changed since it was read is
// treated as already handled.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

const DefaultBatchSize = 500

type Store interface {
	ListLapsedReservations(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*listing.Listing, error)
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expected listing.Expectation, changes listing.Changes) (*listing.Listing, error)
}

// Result summarises one run.
type Result struct {
	ExpiredCount int         `json:"expired_count"`
	ExpiredIDs   []uuid.UUID `json:"expired_ids"`
	Errors       []string    `json:"errors"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

type Sweeper struct {
	store     Store
	clock     clock.Clock
	events    listing.EventPublisher
	batchSize int
}

type Option func(*Sweeper)

func WithClock(c clock.Clock) Option {
	return func(s *Sweeper) {
		s.clock = c
	}
}

func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

func WithEventPublisher(p listing.EventPublisher) Option {
	return func(s *Sweeper) {
		s.events = p
	}
}

func New(store Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store:     store,
		clock:     clock.NewSystem(),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run expires every reservation lapsed at the start of the run. Per-row
// failures are collected in the result; only a failed candidate query or a
// cancelled context ends the run early, and the partial result is returned
// alongside the error.
func (s *Sweeper) Run(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	res := Result{
		ExpiredIDs: []uuid.UUID{},
		Errors:     []string{},
		StartedAt:  now,
	}

	err := s.sweep(ctx, now, &res)
	res.FinishedAt = s.clock.Now()

	if err != nil {
		slog.Error("sweep aborted", "expired", res.ExpiredCount, "row_errors", len(res.Errors), "error", err)
		return res, err
	}

	slog.Info("sweep completed",
		"expired", res.ExpiredCount,
		"row_errors", len(res.Errors),
		"duration", res.FinishedAt.Sub(res.StartedAt),
	)

	return res, nil
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time, res *Result) error {
	var after uuid.UUID

	for {
		batch, err := s.store.ListLapsedReservations(ctx, now, after, s.batchSize)
		if err != nil {
			return fmt.Errorf("querying lapsed reservations: %w", err)
		}

		for _, l := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			s.expire(ctx, l, now, res)
		}

		if len(batch) < s.batchSize {
			return nil
		}

		after = batch[len(batch)-1].ID
	}
}

func (s *Sweeper) expire(ctx context.Context, l *listing.Listing, now time.Time, res *Result) {
	t, err := listing.Expire(l, now)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("listing %s: %v", l.ID, err))
		return
	}

	updated, err := s.store.ConditionalUpdate(ctx, l.ID, t.Expected, t.Changes)

	switch {
	case errors.Is(err, listing.ErrStale):
		return
	case err != nil:
		slog.Warn("failed to expire reservation", "listing_id", l.ID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("listing %s: %v", l.ID, err))

		return
	}

	res.ExpiredCount++
	res.ExpiredIDs = append(res.ExpiredIDs, l.ID)

	if s.events == nil {
		return
	}

	ev := listing.NewEvent(listing.EventExpired, updated, t.From)
	ev.Holder = l.Lease.Holder

	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish listing event", "type", ev.Type, "listing_id", ev.ListingID, "error", err)
	}
}
