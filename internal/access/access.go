// Package access decides whether an actor may act on a day.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/daybook-backend/internal/days"
	"github.com/angelmondragon/daybook-backend/pkg/db"
	"github.com/angelmondragon/daybook-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/daybook-backend/pkg/errors"
)

// Actor is the authenticated caller.
type Actor struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
	Role     enums.Role
}

type ownershipResolver interface {
	ResolveOwnership(ctx context.Context, dayID uuid.UUID) (*days.Ownership, error)
}

// Authorizer checks day ownership for every mutation and run request.
type Authorizer struct {
	days ownershipResolver
}

func NewAuthorizer(resolver ownershipResolver) (*Authorizer, error) {
	if resolver == nil {
		return nil, errors.New("ownership resolver required")
	}
	return &Authorizer{days: resolver}, nil
}

// AuthorizeDay returns the day's ownership when actor shares its tenant and
// either owns it or holds a privileged role.
func (a *Authorizer) AuthorizeDay(ctx context.Context, actor Actor, dayID uuid.UUID) (*days.Ownership, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if dayID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "day id is required")
	}

	owner, err := a.days.ResolveOwnership(ctx, dayID)
	if db.IsNotFound(err) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "day not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve day ownership")
	}

	// a day in another tenant is reported as missing
	if owner.TenantID != actor.TenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "day not found")
	}
	if owner.UserID != actor.UserID && !actor.Role.CanActForOthers() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to act on this day")
	}
	return owner, nil
}
