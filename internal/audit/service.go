package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

const maxPageSize = 100

// WindowParams are the bound arguments of a timeline query. Invalid fields
// disable their filter.
type WindowParams struct {
	FromAt  pgtype.Timestamptz
	ToAt    pgtype.Timestamptz
	ActorID pgtype.UUID
	Entity  pgtype.Text
	Action  pgtype.Text
	Offset  int32
	Limit   int32
}

// Repository reads audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error)
}

// Service serves the audit timeline to owners.
type Service struct {
	repo Repository
}

// NewService constructs the audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, filters TimelineFilters) (Result, error) {
	if err := actor.Require(shared.RoleOwner); err != nil {
		return Result{}, err
	}
	if !filters.From.IsZero() && !filters.To.IsZero() && filters.To.Before(filters.From) {
		return Result{}, shared.Validation("to must not be before from")
	}
	page := shared.NewPage(filters.Page, filters.PageSize, maxPageSize)
	rows, err := s.repo.TimelineWindow(ctx, WindowParams{
		FromAt:  toPgTime(filters.From),
		ToAt:    toPgTime(filters.To),
		ActorID: optionalUUID(filters.ActorID),
		Entity:  optionalText(filters.Entity),
		Action:  optionalText(filters.Action),
		Offset:  int32(page.Offset()),
		Limit:   int32(page.FetchLimit()),
	})
	if err != nil {
		return Result{}, shared.Dependency(err)
	}
	info := page.Info(len(rows))
	if info.HasNext {
		rows = rows[:page.Size]
	}
	if rows == nil {
		rows = []TimelineRow{}
	}
	return Result{Rows: rows, Paging: info}, nil
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func optionalUUID(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}
