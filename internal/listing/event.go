package listing

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventCreated             = "listing.created"
	EventExpired             = "listing.expired"
	EventClaimed             = "listing.claimed"
	EventAvailabilityChanged = "listing.availability_changed"
)

// Event describes a committed change to a listing. Events are published
// after the write and are informational only.
type Event struct {
	Type          string       `json:"type"`
	ListingID     uuid.UUID    `json:"listing_id"`
	Reference     string       `json:"reference"`
	From          Status       `json:"from,omitempty"`
	To            Status       `json:"to"`
	Availability  Availability `json:"availability"`
	Holder        string       `json:"holder,omitempty"`
	ReservedUntil *time.Time   `json:"reserved_until,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// TransitionEventType names the event for a move into status to.
func TransitionEventType(to Status) string {
	return "listing." + string(to)
}

// NewEvent builds an event of the given type from the listing state after
// the write.
func NewEvent(eventType string, l *Listing, from Status) Event {
	ev := Event{
		Type:         eventType,
		ListingID:    l.ID,
		Reference:    l.Reference,
		From:         from,
		To:           l.Status,
		Availability: l.Availability,
		OccurredAt:   l.UpdatedAt,
	}

	if l.Lease != nil {
		ev.Holder = l.Lease.Holder
		ev.ReservedUntil = new(l.Lease.Deadline)
	}

	return ev
}
