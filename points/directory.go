// Package points: directory.go provides user/team lookup for the
// "select award recipients" screen and admin provisioning. Pure reads
// plus one admin-gated write; the balance is never touched here.
package points

import (
	"context"
	"fmt"
)

// Directory is the user/team query service.
type Directory struct {
	store Store
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store}
}

// FindUsers returns users whose email contains the filter substring and,
// when a team is given, who belong to that team. No match yields an
// empty slice.
func (d *Directory) FindUsers(ctx context.Context, f Filter) ([]User, error) {
	return d.store.FindUsers(ctx, f)
}

// ListUsers returns all users in creation order.
func (d *Directory) ListUsers(ctx context.Context) ([]User, error) {
	return d.store.ListUsers(ctx)
}

// ListTeams returns all teams.
func (d *Directory) ListTeams(ctx context.Context) ([]Team, error) {
	return d.store.ListTeams(ctx)
}

// ProvisionUser creates or updates a user's identity fields. Admin only.
// Balances and tokens are untouched: new users start at zero points.
func (d *Directory) ProvisionUser(ctx context.Context, actorEmail string, u *User) error {
	actor, err := d.store.GetUser(ctx, actorEmail)
	if err != nil {
		return fmt.Errorf("load actor %s: %w", actorEmail, err)
	}
	if actor.Role != RoleAdmin {
		return fmt.Errorf("provision by %s: %w", actorEmail, ErrUnauthorized)
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return d.store.PutUser(ctx, u)
}
