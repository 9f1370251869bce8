package importcsv

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/ironyard/internal/http/auth"
	"github.com/MrJamesThe3rd/ironyard/internal/http/render"
	"github.com/MrJamesThe3rd/ironyard/internal/importer"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

const maxUpload = 10 << 20

type Handler struct {
	importSvc *importer.Service
}

func NewHandler(importSvc *importer.Service) *Handler {
	return &Handler{importSvc: importSvc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.importCSV)
}

type createdListing struct {
	ID        uuid.UUID      `json:"id"`
	Reference string         `json:"reference"`
	Title     string         `json:"title"`
	Status    listing.Status `json:"status"`
}

type importResponse struct {
	Charset  string              `json:"charset"`
	Imported int                 `json:"imported"`
	Listings []createdListing    `json:"listings"`
	Errors   []importer.RowError `json:"errors"`
}

func (h *Handler) importCSV(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		render.Fail(w, http.StatusBadRequest, "invalid_input", "failed to parse form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		render.Fail(w, http.StatusBadRequest, "invalid_input", "file field is required")
		return
	}
	defer file.Close()

	res, err := h.importSvc.Import(r.Context(), auth.ActorFrom(r.Context()), file)
	if errors.Is(err, importer.ErrNoHeader) {
		render.Fail(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	if err != nil && len(res.Created) == 0 {
		render.Error(w, r, err)
		return
	}

	status := http.StatusCreated
	if err != nil {
		// Part of the feed went in before the store failed.
		status = http.StatusMultiStatus
		res.Errors = append(res.Errors, importer.RowError{Message: err.Error()})
	}

	render.JSON(w, status, toResponse(res))
}

func toResponse(res importer.Result) importResponse {
	resp := importResponse{
		Charset:  res.Charset,
		Imported: len(res.Created),
		Listings: make([]createdListing, 0, len(res.Created)),
		Errors:   res.Errors,
	}

	if resp.Errors == nil {
		resp.Errors = []importer.RowError{}
	}

	for _, l := range res.Created {
		resp.Listings = append(resp.Listings, createdListing{
			ID:        l.ID,
			Reference: l.Reference,
			Title:     l.Title,
			Status:    l.Status,
		})
	}

	return resp
}
