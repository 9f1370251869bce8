package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ironyard/internal/clock"
	"github.com/MrJamesThe3rd/ironyard/internal/reference"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=listing
type Repository interface {
	// Insert stores a new listing. It returns ErrDuplicateReference when the
	// reference number is already taken.
	Insert(ctx context.Context, l *Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Listing, error)
	GetByReference(ctx context.Context, ref string) (*Listing, error)
	ReferenceExists(ctx context.Context, ref string) (bool, error)
	List(ctx context.Context, filter ListFilter) ([]*Listing, error)

	// ListLapsedReservations returns up to limit reserved listings whose lease
	// deadline is before now, ordered by id and starting after the given id.
	ListLapsedReservations(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*Listing, error)

	// ConditionalUpdate applies changes only if the row still matches expected,
	// returning the updated listing or ErrStale.
	ConditionalUpdate(ctx context.Context, id uuid.UUID, expected Expectation, changes Changes) (*Listing, error)

	// ClaimOwnership links an unowned listing to userID, or returns ErrStale
	// when the listing is already owned.
	ClaimOwnership(ctx context.Context, id, userID uuid.UUID) (*Listing, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

const (
	defaultMaxLease = 7 * 24 * time.Hour
	createAttempts  = 3
	defaultLimit    = 50
	maxLimit        = 200
)

// Service is the only write surface for listing status and lease fields.
// Every mutation is a read, a validation and one conditional write.
type Service struct {
	repo     Repository
	authz    Authorizer
	clock    clock.Clock
	refs     *reference.Allocator
	events   EventPublisher
	maxLease time.Duration
}

type Option func(*Service)

func WithAuthorizer(a Authorizer) Option {
	return func(s *Service) {
		s.authz = a
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithEventPublisher enables publishing of lifecycle events.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithMaxLease caps the duration a single reservation may last.
func WithMaxLease(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.maxLease = d
		}
	}
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		authz:    ClaimsAuthorizer{},
		clock:    clock.NewSystem(),
		maxLease: defaultMaxLease,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.refs = reference.NewAllocator(repo, s.clock)

	return s
}

// Create stores a new draft listing with a freshly allocated reference
// number. A signed-in actor becomes its owner; an anonymous one gets an
// unowned listing reachable through the reference only.
func (s *Service) Create(ctx context.Context, actor Actor, params CreateParams) (*Listing, error) {
	params, err := normalize(params)
	if err != nil {
		return nil, err
	}

	for range createAttempts {
		ref, err := s.refs.Allocate(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating reference: %w", err)
		}

		now := s.clock.Now().Truncate(time.Microsecond)
		l := &Listing{
			ID:           uuid.New(),
			Reference:    ref,
			Status:       StatusDraft,
			Availability: Available,
			Title:        params.Title,
			Description:  params.Description,
			Make:         params.Make,
			Model:        params.Model,
			Year:         params.Year,
			Hours:        params.Hours,
			Price:        params.Price,
			Currency:     params.Currency,
			Location:     params.Location,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if !actor.Anonymous() {
			l.UserID = new(actor.ID)
		}

		err = s.repo.Insert(ctx, l)
		if errors.Is(err, ErrDuplicateReference) {
			continue
		}

		if err != nil {
			return nil, err
		}

		s.publish(ctx, NewEvent(EventCreated, l, ""))

		return l, nil
	}

	return nil, fmt.Errorf("allocating reference: %w", ErrConflict)
}

// Get returns a listing. Drafts, listings in review and archived listings
// are only visible to their owner or an admin.
func (s *Service) Get(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	l, actor, err := s.load(ctx, actor, loc)
	if err != nil {
		return nil, err
	}

	if public(l.Status) {
		return l, nil
	}

	caps, err := s.authz.Capabilities(ctx, actor, l)
	if err != nil {
		return nil, err
	}

	if !caps.Allowed() {
		return nil, ErrNotFound
	}

	return l, nil
}

// List returns listings matching the filter. Only admins, or actors listing
// their own inventory, may see non-public statuses.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) ([]*Listing, error) {
	own := filter.UserID != nil && !actor.Anonymous() && *filter.UserID == actor.ID

	if !actor.Admin && !own {
		if filter.Status == nil {
			filter.Status = new(StatusPublished)
		}

		if !public(*filter.Status) {
			return nil, ErrForbidden
		}
	}

	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultLimit
	case filter.Limit > maxLimit:
		filter.Limit = maxLimit
	}

	return s.repo.List(ctx, filter)
}

func (s *Service) SubmitForReview(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{To: StatusPendingReview})
}

func (s *Service) WithdrawFromReview(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{To: StatusDraft})
}

// Publish moves a reviewed listing live. Reserved listings go back to
// published through ReleaseReservation instead.
func (s *Service) Publish(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{
		To:      StatusPublished,
		Sources: []Status{StatusPendingReview},
	})
}

// Reserve places a lease on a published, available listing. No timer is
// started; the sweeper discovers the lapsed lease later.
func (s *Service) Reserve(ctx context.Context, actor Actor, loc Locator, holder string, d time.Duration) (*Listing, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return nil, fmt.Errorf("%w: reservation holder is required", ErrInvalidInput)
	}

	if d <= 0 || d > s.maxLease {
		return nil, fmt.Errorf("%w: reservation duration must be between 1s and %s", ErrInvalidInput, s.maxLease)
	}

	lease := NewLease(s.clock.Now(), d, holder)

	return s.transition(ctx, actor, loc, TransitionRequest{To: StatusReserved, Lease: &lease})
}

func (s *Service) ReleaseReservation(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{
		To:      StatusPublished,
		Sources: []Status{StatusReserved},
	})
}

func (s *Service) MarkSold(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{To: StatusSold})
}

func (s *Service) Archive(ctx context.Context, actor Actor, loc Locator) (*Listing, error) {
	return s.transition(ctx, actor, loc, TransitionRequest{To: StatusArchived})
}

// SetAvailability flips the secondary availability flag.
func (s *Service) SetAvailability(ctx context.Context, actor Actor, loc Locator, a Availability) (*Listing, error) {
	if a != Available && a != Unavailable {
		return nil, fmt.Errorf("%w: unknown availability %q", ErrInvalidInput, a)
	}

	l, actor, err := s.load(ctx, actor, loc)
	if err != nil {
		return nil, err
	}

	caps, err := s.authz.Capabilities(ctx, actor, l)
	if err != nil {
		return nil, err
	}

	t, err := ChangeAvailability(l, caps, a)
	if err != nil {
		return nil, err
	}

	updated, err := s.apply(ctx, l, t)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, NewEvent(EventAvailabilityChanged, updated, t.From))

	return updated, nil
}

// ClaimOwnership links an unowned listing to the signed-in actor. The
// reference number proves the actor created it.
func (s *Service) ClaimOwnership(ctx context.Context, actor Actor, ref string) (*Listing, error) {
	if actor.Anonymous() {
		return nil, fmt.Errorf("%w: sign in to claim a listing", ErrForbidden)
	}

	l, err := s.repo.GetByReference(ctx, ref)
	if err != nil {
		return nil, err
	}

	if l.UserID != nil {
		if *l.UserID == actor.ID {
			return l, nil
		}

		return nil, fmt.Errorf("listing %s is already owned: %w", l.ID, ErrConflict)
	}

	updated, err := s.repo.ClaimOwnership(ctx, l.ID, actor.ID)
	if errors.Is(err, ErrStale) {
		return nil, fmt.Errorf("claiming listing %s: %w", l.ID, ErrConflict)
	}

	if err != nil {
		return nil, err
	}

	s.publish(ctx, NewEvent(EventClaimed, updated, updated.Status))

	return updated, nil
}

func (s *Service) transition(ctx context.Context, actor Actor, loc Locator, req TransitionRequest) (*Listing, error) {
	l, actor, err := s.load(ctx, actor, loc)
	if err != nil {
		return nil, err
	}

	caps, err := s.authz.Capabilities(ctx, actor, l)
	if err != nil {
		return nil, err
	}

	req.Listing = l
	req.Capabilities = caps

	t, err := Validate(req)
	if err != nil {
		return nil, err
	}

	updated, err := s.apply(ctx, l, t)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, NewEvent(TransitionEventType(t.To), updated, t.From))

	return updated, nil
}

// load reads the listing once. A reference-addressed call carries the
// reference as the actor's credential.
func (s *Service) load(ctx context.Context, actor Actor, loc Locator) (*Listing, Actor, error) {
	if loc.Reference != "" {
		actor.Reference = loc.Reference

		l, err := s.repo.GetByReference(ctx, loc.Reference)

		return l, actor, err
	}

	l, err := s.repo.GetByID(ctx, loc.ID)

	return l, actor, err
}

func (s *Service) apply(ctx context.Context, l *Listing, t Transition) (*Listing, error) {
	updated, err := s.repo.ConditionalUpdate(ctx, l.ID, t.Expected, t.Changes)
	if errors.Is(err, ErrStale) {
		return nil, fmt.Errorf("updating listing %s from %s: %w", l.ID, t.From, ErrConflict)
	}

	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}

	if err := s.events.Publish(ctx, ev); err != nil {
		slog.Warn("failed to publish listing event", "type", ev.Type, "listing_id", ev.ListingID, "error", err)
	}
}

func public(s Status) bool {
	return s == StatusPublished || s == StatusReserved || s == StatusSold
}

func normalize(p CreateParams) (CreateParams, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Description = strings.TrimSpace(p.Description)
	p.Make = strings.TrimSpace(p.Make)
	p.Model = strings.TrimSpace(p.Model)
	p.Location = strings.TrimSpace(p.Location)
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))

	if p.Currency == "" {
		p.Currency = "USD"
	}

	switch {
	case p.Title == "":
		return p, fmt.Errorf("%w: title is required", ErrInvalidInput)
	case p.Year < 0 || p.Hours < 0:
		return p, fmt.Errorf("%w: year and hours must not be negative", ErrInvalidInput)
	case p.Price.IsNegative():
		return p, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	case len(p.Currency) != 3:
		return p, fmt.Errorf("%w: currency must be a three-letter code", ErrInvalidInput)
	}

	return p, nil
}
