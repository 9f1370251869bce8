package listing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

type reservationResponse struct {
	Holder        string    `json:"holder"`
	Start         time.Time `json:"start"`
	ReservedUntil time.Time `json:"reserved_until"`
}

type listingResponse struct {
	ID           uuid.UUID            `json:"id"`
	Reference    string               `json:"reference,omitempty"`
	UserID       *uuid.UUID           `json:"user_id,omitempty"`
	Status       listing.Status       `json:"status"`
	Availability listing.Availability `json:"availability"`
	Reservation  *reservationResponse `json:"reservation,omitempty"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	Make         string               `json:"make,omitempty"`
	Model        string               `json:"model,omitempty"`
	Year         int                  `json:"year,omitempty"`
	Hours        int                  `json:"hours,omitempty"`
	Price        decimal.Decimal      `json:"price"`
	Currency     string               `json:"currency"`
	Location     string               `json:"location,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// toResponse hides the reference number unless the caller already holds it
// or owns the listing, since it unlocks unowned listings.
func toResponse(l *listing.Listing, actor listing.Actor, revealRef bool) listingResponse {
	resp := listingResponse{
		ID:           l.ID,
		UserID:       l.UserID,
		Status:       l.Status,
		Availability: l.Availability,
		Title:        l.Title,
		Description:  l.Description,
		Make:         l.Make,
		Model:        l.Model,
		Year:         l.Year,
		Hours:        l.Hours,
		Price:        l.Price,
		Currency:     l.Currency,
		Location:     l.Location,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}

	owner := l.UserID != nil && !actor.Anonymous() && *l.UserID == actor.ID
	if revealRef || owner || actor.Admin {
		resp.Reference = l.Reference
	}

	if l.Lease != nil {
		resp.Reservation = &reservationResponse{
			Holder:        l.Lease.Holder,
			Start:         l.Lease.Start,
			ReservedUntil: l.Lease.Deadline,
		}
	}

	return resp
}

func toResponseList(ls []*listing.Listing, actor listing.Actor) []listingResponse {
	resp := make([]listingResponse, len(ls))
	for i, l := range ls {
		resp[i] = toResponse(l, actor, false)
	}

	return resp
}
