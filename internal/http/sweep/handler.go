package sweep

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrJamesThe3rd/ironyard/internal/http/render"
	"github.com/MrJamesThe3rd/ironyard/internal/sweeper"
)

type Runner interface {
	Run(ctx context.Context) (sweeper.Result, error)
}

// writeGrace is the time left to write the result once the run's own
// deadline has passed.
const writeGrace = 5 * time.Second

type Handler struct {
	runner  Runner
	timeout time.Duration
}

// NewHandler returns a trigger whose runs are bounded by timeout. A zero
// timeout leaves the request context as the only bound.
func NewHandler(r Runner, timeout time.Duration) *Handler {
	return &Handler{runner: r, timeout: timeout}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.run)
}

type runResponse struct {
	sweeper.Result
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// run executes one sweep and reports it. Per-row errors still count as a
// completed run; a failed candidate query answers 500 with the partial result.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()

		// The server's write timeout is sized for ordinary requests.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.timeout + writeGrace))
	}

	res, err := h.runner.Run(ctx)
	if err != nil {
		render.JSON(w, http.StatusInternalServerError, runResponse{Result: res, Error: err.Error()})
		return
	}

	render.JSON(w, http.StatusOK, runResponse{Result: res, OK: true})
}
