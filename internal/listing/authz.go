package listing

import (
	"context"

	"github.com/google/uuid"
)

// Actor is the caller of a lifecycle operation. A zero ID means the caller is
// anonymous. Reference is the reference number the caller presented, if any.
type Actor struct {
	ID        uuid.UUID
	Admin     bool
	Reference string
}

func (a Actor) Anonymous() bool {
	return a.ID == uuid.Nil
}

// System is the admin actor used by internal tooling.
var System = Actor{Admin: true}

// Authorizer resolves what an actor may do with a listing.
type Authorizer interface {
	Capabilities(ctx context.Context, actor Actor, l *Listing) (Capabilities, error)
}

// ClaimsAuthorizer trusts the admin flag of an already verified actor and
// derives ownership from the listing itself.
type ClaimsAuthorizer struct{}

func (ClaimsAuthorizer) Capabilities(_ context.Context, actor Actor, l *Listing) (Capabilities, error) {
	return Capabilities{
		IsOwner: isOwner(actor, l),
		IsAdmin: actor.Admin,
	}, nil
}

// isOwner treats the reference number as the owner's key while the listing
// is unowned; once linked, only the account holder owns it.
func isOwner(actor Actor, l *Listing) bool {
	if l.UserID != nil {
		return !actor.Anonymous() && *l.UserID == actor.ID
	}

	return actor.Reference != "" && actor.Reference == l.Reference
}
