package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// ErrUnknownUser indicates that no profile exists for the presented user id.
var ErrUnknownUser = shared.NewError(shared.KindAuthorization, "unknown_user", "Unknown user")

// ProfileStore loads user profiles.
type ProfileStore interface {
	Profile(ctx context.Context, userID uuid.UUID) (Profile, error)
}

// Service resolves acting users and their permissions.
type Service struct {
	store ProfileStore
}

// NewService constructs a Service backed by the provided store.
func NewService(store ProfileStore) *Service {
	return &Service{store: store}
}

// Actor resolves the acting user for userID.
func (s *Service) Actor(ctx context.Context, userID uuid.UUID) (shared.Actor, error) {
	if userID == uuid.Nil {
		return shared.Actor{}, shared.ErrNoActor
	}
	profile, err := s.store.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.Actor{}, ErrUnknownUser
		}
		return shared.Actor{}, shared.Dependency(err)
	}
	if !profile.Role.Valid() {
		return shared.Actor{}, ErrUnknownUser.Withf("User has unrecognised role %q", profile.Role)
	}
	return shared.Actor{ID: userID, Role: profile.Role}, nil
}

// EffectivePermissions lists the permissions held by actor.
func (s *Service) EffectivePermissions(actor shared.Actor) []string {
	return PermissionsFor(actor.Role)
}

// PGProfileStore reads the profiles relation.
type PGProfileStore struct {
	pool *pgxpool.Pool
}

// NewPGProfileStore constructs the PostgreSQL profile store.
func NewPGProfileStore(pool *pgxpool.Pool) *PGProfileStore {
	return &PGProfileStore{pool: pool}
}

// Profile loads one profile; pgx.ErrNoRows when absent.
func (s *PGProfileStore) Profile(ctx context.Context, userID uuid.UUID) (Profile, error) {
	var p Profile
	var name *string
	err := s.pool.QueryRow(ctx, `SELECT id::text, full_name, role FROM profiles WHERE id = $1`, userID).Scan(&p.ID, &name, &p.Role)
	if err != nil {
		return Profile{}, err
	}
	if name != nil {
		p.FullName = *name
	}
	return p, nil
}
