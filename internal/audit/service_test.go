package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/rbac"
	"github.com/tutti-stock/tutti-stock/internal/shared"
)

type stubTimelineRepo struct {
	rows []TimelineRow
	err  error
	last WindowParams
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, arg WindowParams) ([]TimelineRow, error) {
	s.last = arg
	if s.err != nil {
		return nil, s.err
	}
	rows := s.rows
	if int(arg.Limit) < len(rows) {
		rows = rows[:arg.Limit]
	}
	return rows, nil
}

func entries(n int) []TimelineRow {
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	out := make([]TimelineRow, n)
	for i := range out {
		out[i] = TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Hour),
			Action:   "finalize",
			Entity:   "delivery_plans",
			EntityID: uuid.NewString(),
		}
	}
	return out
}

var owner = shared.Actor{ID: uuid.New(), Role: shared.RoleOwner}

func TestTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: entries(3)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), owner, TimelineFilters{
		From:     time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Entity:   " delivery_plans ",
		PageSize: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.EqualValues(t, 3, repo.last.Limit)
	require.EqualValues(t, 0, repo.last.Offset)
	require.True(t, repo.last.FromAt.Valid)
	require.Equal(t, "delivery_plans", repo.last.Entity.String)
	require.False(t, repo.last.Action.Valid)
	require.False(t, repo.last.ActorID.Valid)
}

func TestTimelineLastPage(t *testing.T) {
	repo := &stubTimelineRepo{rows: entries(1)}
	result, err := NewService(repo).Timeline(context.Background(), owner, TimelineFilters{Page: 3, PageSize: 5})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.EqualValues(t, 10, repo.last.Offset)
}

func TestTimelineEmptyIsNotNil(t *testing.T) {
	result, err := NewService(&stubTimelineRepo{}).Timeline(context.Background(), owner, TimelineFilters{})
	require.NoError(t, err)
	require.NotNil(t, result.Rows)
	require.Empty(t, result.Rows)
}

func TestTimelineRejections(t *testing.T) {
	svc := NewService(&stubTimelineRepo{})

	_, err := svc.Timeline(context.Background(), shared.Actor{ID: uuid.New(), Role: shared.RoleManager}, TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrAuthorization)

	_, err = svc.Timeline(context.Background(), owner, TimelineFilters{
		From: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = NewService(&stubTimelineRepo{err: errors.New("connection reset")}).Timeline(context.Background(), owner, TimelineFilters{})
	require.ErrorIs(t, err, shared.ErrDependency)
	require.True(t, shared.Retryable(err))
}

func TestHandlerParsesFilters(t *testing.T) {
	repo := &stubTimelineRepo{rows: entries(2)}
	h := NewHandler(NewService(repo), slog.New(slog.NewTextHandler(io.Discard, nil)), rbac.Middleware{})

	r := chi.NewRouter()
	r.Get("/audit", h.timeline)

	req := httptest.NewRequest(http.MethodGet, "/audit?from=2024-03-01&to=2024-03-10&action=revert&page=2&page_size=1", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), owner))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), repo.last.ToAt.Time)
	require.Equal(t, "revert", repo.last.Action.String)
	require.EqualValues(t, 1, repo.last.Offset)

	bad := httptest.NewRequest(http.MethodGet, "/audit?page=two", nil)
	bad = bad.WithContext(shared.ContextWithActor(bad.Context(), owner))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, bad)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
