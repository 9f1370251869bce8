package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/ironyard/internal/http/auth"
	"github.com/MrJamesThe3rd/ironyard/internal/http/render"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
	"github.com/MrJamesThe3rd/ironyard/internal/reference"
)

type Handler struct {
	svc *listing.Service
}

func NewHandler(svc *listing.Service) *Handler {
	return &Handler{svc: svc}
}

type action func(ctx context.Context, actor listing.Actor, loc listing.Locator) (*listing.Listing, error)

func (h *Handler) actions() map[string]action {
	return map[string]action{
		"submit":   h.svc.SubmitForReview,
		"withdraw": h.svc.WithdrawFromReview,
		"publish":  h.svc.Publish,
		"release":  h.svc.ReleaseReservation,
		"sold":     h.svc.MarkSold,
		"archive":  h.svc.Archive,
	}
}

// Routes mounts the id-addressed endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	h.mount(r, "/{id}", byID)
}

// RefRoutes mounts the same endpoints addressed by reference number, plus
// claiming.
func (h *Handler) RefRoutes(r chi.Router) {
	h.mount(r, "/{reference}", byReference)
	r.With(auth.RequireUser).Post("/{reference}/claim", h.claim)
}

type locate func(r *http.Request) (listing.Locator, error)

func (h *Handler) mount(r chi.Router, prefix string, loc locate) {
	r.Get(prefix, h.get(loc))
	r.Post(prefix+"/reserve", h.reserve(loc))
	r.Put(prefix+"/availability", h.setAvailability(loc))

	for name, do := range h.actions() {
		r.Post(prefix+"/"+name, h.transition(loc, do))
	}
}

func byID(r *http.Request) (listing.Locator, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return listing.Locator{}, fmt.Errorf("%w: invalid id", listing.ErrInvalidInput)
	}

	return listing.ByID(id), nil
}

func byReference(r *http.Request) (listing.Locator, error) {
	ref := chi.URLParam(r, "reference")
	if !reference.Valid(ref) {
		return listing.Locator{}, listing.ErrNotFound
	}

	return listing.ByReference(ref), nil
}

type createListingRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Make        string          `json:"make"`
	Model       string          `json:"model"`
	Year        int             `json:"year"`
	Hours       int             `json:"hours"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Location    string          `json:"location"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.Fail(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
		return
	}

	actor := auth.ActorFrom(r.Context())

	l, err := h.svc.Create(r.Context(), actor, listing.CreateParams{
		Title:       req.Title,
		Description: req.Description,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		Hours:       req.Hours,
		Price:       req.Price,
		Currency:    req.Currency,
		Location:    req.Location,
	})
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusCreated, toResponse(l, actor, true))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorFrom(r.Context())
	q := r.URL.Query()

	var filter listing.ListFilter

	if s := q.Get("status"); s != "" {
		status := listing.Status(s)
		if !status.Valid() {
			render.Fail(w, http.StatusBadRequest, "invalid_input", "unknown status "+s)
			return
		}

		filter.Status = new(status)
	}

	switch owner := q.Get("owner"); owner {
	case "":
	case "me":
		if actor.Anonymous() {
			render.Fail(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}

		filter.UserID = new(actor.ID)
	default:
		id, err := uuid.Parse(owner)
		if err != nil {
			render.Fail(w, http.StatusBadRequest, "invalid_input", "invalid owner")
			return
		}

		filter.UserID = new(id)
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			render.Fail(w, http.StatusBadRequest, "invalid_input", "invalid limit")
			return
		}

		filter.Limit = n
	}

	ls, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponseList(ls, actor))
}

func (h *Handler) get(loc locate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := loc(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		actor := auth.ActorFrom(r.Context())

		got, err := h.svc.Get(r.Context(), actor, l)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		render.JSON(w, http.StatusOK, toResponse(got, actor, l.Reference != ""))
	}
}

func (h *Handler) transition(loc locate, do action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := loc(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		actor := auth.ActorFrom(r.Context())

		got, err := do(r.Context(), actor, l)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		render.JSON(w, http.StatusOK, toResponse(got, actor, l.Reference != ""))
	}
}

type reserveRequest struct {
	Holder          string `json:"holder"`
	DurationSeconds int64  `json:"duration_seconds"`
}

func (h *Handler) reserve(loc locate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := loc(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		var req reserveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Fail(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
			return
		}

		actor := auth.ActorFrom(r.Context())

		got, err := h.svc.Reserve(r.Context(), actor, l, req.Holder, time.Duration(req.DurationSeconds)*time.Second)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		render.JSON(w, http.StatusOK, toResponse(got, actor, l.Reference != ""))
	}
}

type availabilityRequest struct {
	Availability listing.Availability `json:"availability"`
}

func (h *Handler) setAvailability(loc locate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l, err := loc(r)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		var req availabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			render.Fail(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
			return
		}

		actor := auth.ActorFrom(r.Context())

		got, err := h.svc.SetAvailability(r.Context(), actor, l, req.Availability)
		if err != nil {
			render.Error(w, r, err)
			return
		}

		render.JSON(w, http.StatusOK, toResponse(got, actor, l.Reference != ""))
	}
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	l, err := byReference(r)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	actor := auth.ActorFrom(r.Context())

	got, err := h.svc.ClaimOwnership(r.Context(), actor, l.Reference)
	if err != nil {
		render.Error(w, r, err)
		return
	}

	render.JSON(w, http.StatusOK, toResponse(got, actor, true))
}
