package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// ActorFrom returns the actor resolved by the rbac middleware, or the zero
// actor which every service rejects.
func ActorFrom(r *http.Request) shared.Actor {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor
}

// UUIDParam parses a chi URL parameter as a UUID.
func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, shared.Validation("%s must be a valid id", name)
	}
	return id, nil
}

// UUIDQuery parses an optional query parameter as a UUID.
func UUIDQuery(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.Validation("%s must be a valid id", name)
	}
	return id, nil
}

// DateQuery parses an optional YYYY-MM-DD query parameter.
func DateQuery(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(shared.DateLayout, raw)
	if err != nil {
		return time.Time{}, shared.Validation("%s must be formatted as YYYY-MM-DD", name)
	}
	return t, nil
}

// IntQuery parses an optional integer query parameter; absent yields zero.
func IntQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.Validation("%s must be a whole number", name)
	}
	return n, nil
}
