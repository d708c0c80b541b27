package rbac

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tutti-stock/tutti-stock/internal/platform/httpx"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// UserHeader carries the authenticated user id set by the upstream gateway.
const UserHeader = "X-User-ID"

var errPermissionDenied = shared.NewError(shared.KindAuthorization, "permission_denied", "You do not have permission to perform this action")

// Middleware resolves the acting user and guards route groups by permission.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// ResolveActor loads the profile named by X-User-ID and stores the actor on the
// request context. Missing or malformed ids answer 403 no_actor.
func (m Middleware) ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := m.headerUserID(r)
		if !ok {
			httpx.RespondError(w, shared.ErrNoActor)
			return
		}
		actor, err := m.Service.Actor(r.Context(), userID)
		if err != nil {
			if shared.Retryable(err) {
				m.log().Error("rbac resolve actor", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny passes actors holding at least one of perms.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := cleanPermissions(perms)
	return m.guard(func(role shared.Role) bool {
		return len(required) == 0 || slices.ContainsFunc(required, func(p string) bool { return Granted(role, p) })
	})
}

// RequireAll passes actors holding every one of perms.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := cleanPermissions(perms)
	return m.guard(func(role shared.Role) bool {
		for _, p := range required {
			if !Granted(role, p) {
				return false
			}
		}
		return true
	})
}

func (m Middleware) guard(allowed func(shared.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrNoActor)
				return
			}
			if !allowed(actor.Role) {
				m.log().Debug("rbac denied",
					slog.String("actor_id", actor.ID.String()),
					slog.String("role", string(actor.Role)),
					slog.String("path", r.URL.Path))
				httpx.RespondError(w, errPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) headerUserID(r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(UserHeader))
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		m.log().Warn("rbac parse user id", slog.String("value", raw))
		return uuid.Nil, false
	}
	return id, true
}

func (m Middleware) log() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

// cleanPermissions lowercases, trims and dedupes permission names.
func cleanPermissions(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
