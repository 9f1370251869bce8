// Package listingtest provides an in-memory listing store with the same
// conditional-write semantics as the Postgres store.
package listingtest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

type Store struct {
	mu       sync.Mutex
	clock    clock.Clock
	listings map[uuid.UUID]*listing.Listing

	// BeforeUpdate, when set, runs ahead of every conditional write while the
	// store is unlocked. A non-nil error fails the write with that error.
	BeforeUpdate func(id uuid.UUID) error
	// LapsedErr, when set, fails every ListLapsedReservations call.
	LapsedErr error
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Store{
		clock:    clk,
		listings: make(map[uuid.UUID]*listing.Listing),
	}
}

// Put stores l as is, replacing any listing with the same id.
func (s *Store) Put(l *listing.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listings[l.ID] = clone(l)
}

func (s *Store) Insert(_ context.Context, l *listing.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.listings {
		if existing.Reference == l.Reference {
			return listing.ErrDuplicateReference
		}
	}

	s.listings[l.ID] = clone(l)

	return nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, listing.ErrNotFound
	}

	return clone(l), nil
}

func (s *Store) GetByReference(_ context.Context, ref string) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.listings {
		if l.Reference == ref {
			return clone(l), nil
		}
	}

	return nil, listing.ErrNotFound
}

func (s *Store) ReferenceExists(_ context.Context, ref string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.listings {
		if l.Reference == ref {
			return true, nil
		}
	}

	return false, nil
}

func (s *Store) List(_ context.Context, filter listing.ListFilter) ([]*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*listing.Listing

	for _, l := range s.listings {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}

		if filter.UserID != nil && (l.UserID == nil || *l.UserID != *filter.UserID) {
			continue
		}

		out = append(out, clone(l))
	}

	slices.SortFunc(out, func(a, b *listing.Listing) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	return out, nil
}

func (s *Store) ListLapsedReservations(_ context.Context, now time.Time, after uuid.UUID, limit int) ([]*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.LapsedErr != nil {
		return nil, s.LapsedErr
	}

	var out []*listing.Listing

	for _, l := range s.listings {
		if l.Status != listing.StatusReserved || l.Lease == nil || !l.Lease.Deadline.Before(now) {
			continue
		}

		if cmp.Compare(l.ID.String(), after.String()) <= 0 {
			continue
		}

		out = append(out, clone(l))
	}

	slices.SortFunc(out, func(a, b *listing.Listing) int {
		return cmp.Compare(a.ID.String(), b.ID.String())
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (s *Store) ConditionalUpdate(_ context.Context, id uuid.UUID, expected listing.Expectation, changes listing.Changes) (*listing.Listing, error) {
	if hook := s.BeforeUpdate; hook != nil {
		if err := hook(id); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok || !matches(l, expected) {
		return nil, listing.ErrStale
	}

	l.Status = changes.Status
	l.Lease = nil

	if changes.Lease != nil {
		lease := *changes.Lease
		l.Lease = &lease
	}

	if changes.Availability != nil {
		l.Availability = *changes.Availability
	}

	l.UpdatedAt = s.clock.Now()

	return clone(l), nil
}

func (s *Store) ClaimOwnership(_ context.Context, id, userID uuid.UUID) (*listing.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok || l.UserID != nil {
		return nil, listing.ErrStale
	}

	l.UserID = new(userID)
	l.UpdatedAt = s.clock.Now()

	return clone(l), nil
}

func matches(l *listing.Listing, e listing.Expectation) bool {
	if l.Status != e.Status {
		return false
	}

	if e.Availability != nil && l.Availability != *e.Availability {
		return false
	}

	until := l.ReservedUntil()
	if e.ReservedUntil == nil || until == nil {
		return e.ReservedUntil == nil && until == nil
	}

	return until.Equal(*e.ReservedUntil)
}

func clone(l *listing.Listing) *listing.Listing {
	c := *l
	if l.UserID != nil {
		c.UserID = new(*l.UserID)
	}

	if l.Lease != nil {
		lease := *l.Lease
		c.Lease = &lease
	}

	return &c
}
