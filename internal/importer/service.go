package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

// Creator is the lifecycle operation feed rows go through.
type Creator interface {
	Create(ctx context.Context, actor listing.Actor, params listing.CreateParams) (*listing.Listing, error)
}

type Service struct {
	creator Creator
}

func NewService(c Creator) *Service {
	return &Service{creator: c}
}

type Result struct {
	Charset string
	Created []*listing.Listing
	Errors  []RowError
}

// Import creates one draft listing per valid feed row. Rows the lifecycle
// service rejects as invalid are reported with the parse errors; any other
// failure stops the import and returns what was created so far.
func (s *Service) Import(ctx context.Context, actor listing.Actor, r io.Reader) (Result, error) {
	feed, err := Parse(r)
	if err != nil {
		return Result{}, err
	}

	res := Result{Charset: feed.Charset, Errors: feed.Errors}

	for _, row := range feed.Rows {
		l, err := s.creator.Create(ctx, actor, row.Params)
		if errors.Is(err, listing.ErrInvalidInput) {
			msg := strings.TrimPrefix(err.Error(), listing.ErrInvalidInput.Error()+": ")
			res.Errors = append(res.Errors, RowError{Line: row.Line, Message: msg})

			continue
		}

		if err != nil {
			return res, fmt.Errorf("importing line %d: %w", row.Line, err)
		}

		res.Created = append(res.Created, l)
	}

	return res, nil
}
