package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/ironyard/internal/listing"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// row mirrors the listings table.
type row struct {
	ID            uuid.UUID       `db:"id"`
	Reference     string          `db:"reference"`
	UserID        uuid.NullUUID   `db:"user_id"`
	Status        string          `db:"status"`
	Availability  string          `db:"availability"`
	LeaseStart    sql.NullTime    `db:"lease_start"`
	ReservedUntil sql.NullTime    `db:"reserved_until"`
	LeaseHolder   sql.NullString  `db:"lease_holder"`
	Title         string          `db:"title"`
	Description   string          `db:"description"`
	Make          string          `db:"make"`
	Model         string          `db:"model"`
	Year          int             `db:"year"`
	Hours         int             `db:"hours"`
	Price         decimal.Decimal `db:"price"`
	Currency      string          `db:"currency"`
	Location      string          `db:"location"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (r row) toListing() *listing.Listing {
	l := &listing.Listing{
		ID:           r.ID,
		Reference:    r.Reference,
		Status:       listing.Status(r.Status),
		Availability: listing.Availability(r.Availability),
		Title:        r.Title,
		Description:  r.Description,
		Make:         r.Make,
		Model:        r.Model,
		Year:         r.Year,
		Hours:        r.Hours,
		Price:        r.Price,
		Currency:     r.Currency,
		Location:     r.Location,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}

	if r.UserID.Valid {
		l.UserID = new(r.UserID.UUID)
	}

	if r.ReservedUntil.Valid {
		l.Lease = &listing.Lease{
			Start:    r.LeaseStart.Time.UTC(),
			Deadline: r.ReservedUntil.Time.UTC(),
			Holder:   r.LeaseHolder.String,
		}
	}

	return l
}

const columns = `
	id, reference, user_id, status, availability, lease_start, reserved_until, lease_holder,
	title, description, make, model, year, hours, price, currency, location, created_at, updated_at
`

func (s *Store) Insert(ctx context.Context, l *listing.Listing) error {
	query := `
		INSERT INTO listings (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`

	start, until, holder := leaseColumns(l.Lease)

	_, err := s.db.ExecContext(ctx, query,
		l.ID, l.Reference, l.UserID, l.Status, l.Availability, start, until, holder,
		l.Title, l.Description, l.Make, l.Model, l.Year, l.Hours, l.Price, l.Currency, l.Location,
		l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return listing.ErrDuplicateReference
		}

		return unavailable("inserting listing", err)
	}

	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*listing.Listing, error) {
	return s.get(ctx, `SELECT `+columns+` FROM listings WHERE id = $1`, id)
}

func (s *Store) GetByReference(ctx context.Context, ref string) (*listing.Listing, error) {
	return s.get(ctx, `SELECT `+columns+` FROM listings WHERE reference = $1`, ref)
}

func (s *Store) get(ctx context.Context, query string, arg any) (*listing.Listing, error) {
	var r row
	if err := s.db.GetContext(ctx, &r, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listing.ErrNotFound
		}

		return nil, unavailable("getting listing", err)
	}

	return r.toListing(), nil
}

func (s *Store) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM listings WHERE reference = $1)`, ref); err != nil {
		return false, unavailable("checking reference", err)
	}

	return exists, nil
}

func (s *Store) List(ctx context.Context, filter listing.ListFilter) ([]*listing.Listing, error) {
	query := `SELECT ` + columns + ` FROM listings WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.Status != nil {
		query += ` AND status = $` + strconv.Itoa(argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}

	if filter.UserID != nil {
		query += ` AND user_id = $` + strconv.Itoa(argIdx)
		args = append(args, *filter.UserID)
		argIdx++
	}

	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT $` + strconv.Itoa(argIdx)
		args = append(args, filter.Limit)
	}

	return s.selectListings(ctx, "listing listings", query, args...)
}

func (s *Store) ListLapsedReservations(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]*listing.Listing, error) {
	query := `SELECT ` + columns + `
		FROM listings
		WHERE status = 'reserved' AND reserved_until < $1 AND id > $2
		ORDER BY id
		LIMIT $3`

	return s.selectListings(ctx, "listing lapsed reservations", query, now, after, limit)
}

func (s *Store) selectListings(ctx context.Context, op, query string, args ...any) ([]*listing.Listing, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable(op, err)
	}

	out := make([]*listing.Listing, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toListing())
	}

	return out, nil
}

// ConditionalUpdate writes changes in a single statement guarded by the
// expected status, lease deadline and, optionally, availability.
func (s *Store) ConditionalUpdate(ctx context.Context, id uuid.UUID, expected listing.Expectation, changes listing.Changes) (*listing.Listing, error) {
	query := `
		UPDATE listings
		SET status = $2,
			lease_start = $3,
			reserved_until = $4,
			lease_holder = $5,
			availability = COALESCE($6::text, availability),
			updated_at = NOW()
		WHERE id = $1
			AND status = $7
			AND reserved_until IS NOT DISTINCT FROM $8::timestamptz
			AND ($9::text IS NULL OR availability = $9::text)
		RETURNING ` + columns

	start, until, holder := leaseColumns(changes.Lease)

	var r row

	err := s.db.GetContext(ctx, &r, query,
		id, changes.Status, start, until, holder, changes.Availability,
		expected.Status, expected.ReservedUntil, expected.Availability,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listing.ErrStale
		}

		return nil, unavailable("updating listing", err)
	}

	return r.toListing(), nil
}

func (s *Store) ClaimOwnership(ctx context.Context, id, userID uuid.UUID) (*listing.Listing, error) {
	query := `
		UPDATE listings
		SET user_id = $2, updated_at = NOW()
		WHERE id = $1 AND user_id IS NULL
		RETURNING ` + columns

	var r row
	if err := s.db.GetContext(ctx, &r, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, listing.ErrStale
		}

		return nil, unavailable("claiming listing", err)
	}

	return r.toListing(), nil
}

func leaseColumns(l *listing.Lease) (start, until *time.Time, holder *string) {
	if l == nil {
		return nil, nil, nil
	}

	return new(l.Start), new(l.Deadline), new(l.Holder)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", listing.ErrStoreUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
