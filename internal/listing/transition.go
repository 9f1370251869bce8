package listing

import (
	"slices"
	"time"
)

// transitions is the legal lifecycle graph. Sold and archived have no outgoing edges.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusArchived},
	StatusPendingReview: {StatusPublished, StatusDraft, StatusArchived},
	StatusPublished:     {StatusReserved, StatusSold, StatusArchived},
	StatusReserved:      {StatusPublished, StatusSold, StatusArchived},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Capabilities is what the caller may do with one particular listing.
type Capabilities struct {
	IsOwner bool
	IsAdmin bool
}

func (c Capabilities) Allowed() bool {
	return c.IsOwner || c.IsAdmin
}

// Expectation is the state a conditional write requires the row to still be in.
// A nil ReservedUntil means the row must hold no lease; a nil Availability
// means availability is not checked.
type Expectation struct {
	Status        Status
	ReservedUntil *time.Time
	Availability  *Availability
}

// Changes is the state a conditional write applies. Lease must be set iff
// Status is StatusReserved; a nil Availability leaves the flag untouched.
type Changes struct {
	Status       Status
	Lease        *Lease
	Availability *Availability
}

// Transition is an approved state change, ready to be applied with a single
// conditional write.
type Transition struct {
	From     Status
	To       Status
	Expected Expectation
	Changes  Changes
}

type TransitionRequest struct {
	Listing      *Listing
	To           Status
	Capabilities Capabilities
	// Lease is the lease to record; required when To is StatusReserved.
	Lease *Lease
	// Sources restricts the current statuses this request accepts beyond the
	// graph itself. Empty means any graph source.
	Sources []Status
}

// Validate decides whether the requested transition is legal for the caller.
// It has no side effects.
func Validate(req TransitionRequest) (Transition, error) {
	l := req.Listing
	from, to := l.Status, req.To

	if !req.Capabilities.Allowed() {
		return Transition{}, reject(ErrForbidden, from, to, "caller is neither owner nor admin")
	}

	if to == StatusReserved {
		switch {
		case from != StatusPublished:
			return Transition{}, reject(ErrPreconditionFailed, from, to, "listing is not published")
		case l.Availability != Available:
			return Transition{}, reject(ErrPreconditionFailed, from, to, "listing is unavailable")
		case req.Lease == nil:
			return Transition{}, reject(ErrPreconditionFailed, from, to, "no lease supplied")
		}
	}

	if !CanTransition(from, to) {
		return Transition{}, reject(ErrInvalidTransition, from, to, "")
	}

	if len(req.Sources) > 0 && !slices.Contains(req.Sources, from) {
		return Transition{}, reject(ErrPreconditionFailed, from, to, "operation does not apply to a "+string(from)+" listing")
	}

	t := Transition{
		From:     from,
		To:       to,
		Expected: expectationOf(l),
		Changes:  Changes{Status: to},
	}

	if to == StatusReserved {
		lease := *req.Lease
		t.Changes.Lease = &lease
		// Availability is part of the precondition, so it must still hold at write time.
		t.Expected.Availability = new(Available)
	}

	return t, nil
}

// Expire builds the transition the sweeper applies to a lapsed reservation:
// back to published and available with the lease cleared.
func Expire(l *Listing, now time.Time) (Transition, error) {
	switch {
	case l.Status != StatusReserved:
		return Transition{}, reject(ErrPreconditionFailed, l.Status, StatusPublished, "listing is not reserved")
	case l.Lease == nil:
		return Transition{}, reject(ErrPreconditionFailed, l.Status, StatusPublished, "reserved listing has no lease")
	case !l.Lease.IsExpired(now):
		return Transition{}, reject(ErrPreconditionFailed, l.Status, StatusPublished, "lease has not lapsed")
	}

	return Transition{
		From:     StatusReserved,
		To:       StatusPublished,
		Expected: expectationOf(l),
		Changes: Changes{
			Status:       StatusPublished,
			Availability: new(Available),
		},
	}, nil
}

// ChangeAvailability builds the write that flips the availability flag while
// leaving status and lease untouched.
func ChangeAvailability(l *Listing, caps Capabilities, a Availability) (Transition, error) {
	if !caps.Allowed() {
		return Transition{}, reject(ErrForbidden, l.Status, l.Status, "caller is neither owner nor admin")
	}

	if l.Status.Terminal() {
		return Transition{}, reject(ErrInvalidTransition, l.Status, l.Status, "listing is closed")
	}

	t := Transition{
		From:     l.Status,
		To:       l.Status,
		Expected: expectationOf(l),
		Changes: Changes{
			Status:       l.Status,
			Availability: &a,
		},
	}

	if l.Lease != nil {
		lease := *l.Lease
		t.Changes.Lease = &lease
	}

	return t, nil
}

func expectationOf(l *Listing) Expectation {
	e := Expectation{Status: l.Status}
	if until := l.ReservedUntil(); until != nil {
		e.ReservedUntil = new(*until)
	}

	return e
}
