package listing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the lifecycle state of a listing.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusPublished     Status = "published"
	StatusReserved      Status = "reserved"
	StatusSold          Status = "sold"
	StatusArchived      Status = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusPublished, StatusReserved, StatusSold, StatusArchived:
		return true
	}

	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusSold || s == StatusArchived
}

// Availability is a secondary flag independent of Status.
type Availability string

const (
	Available   Availability = "available"
	Unavailable Availability = "unavailable"
)

// Listing represents a piece of equipment offered on the marketplace.
type Listing struct {
	ID           uuid.UUID
	Reference    string
	UserID       *uuid.UUID // nil until linked to an account
	Status       Status
	Availability Availability
	Lease        *Lease // non-nil iff Status is StatusReserved

	Title       string
	Description string
	Make        string
	Model       string
	Year        int
	Hours       int
	Price       decimal.Decimal
	Currency    string
	Location    string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Owned reports whether the listing is linked to an account.
func (l *Listing) Owned() bool {
	return l.UserID != nil
}

// ReservedUntil returns the lease deadline, or nil when the listing holds no lease.
func (l *Listing) ReservedUntil() *time.Time {
	if l.Lease == nil {
		return nil
	}

	return &l.Lease.Deadline
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status *Status
	UserID *uuid.UUID
	Limit  int
}

// Locator addresses a listing either by internal id or by reference number.
type Locator struct {
	ID        uuid.UUID
	Reference string
}

func ByID(id uuid.UUID) Locator {
	return Locator{ID: id}
}

func ByReference(ref string) Locator {
	return Locator{Reference: ref}
}

// CreateParams holds the details supplied when a listing is created.
type CreateParams struct {
	Title       string
	Description string
	Make        string
	Model       string
	Year        int
	Hours       int
	Price       decimal.Decimal
	Currency    string
	Location    string
}
