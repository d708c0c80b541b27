package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  uuid.UUID
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one audit entry joined with the acting profile.
type TimelineRow struct {
	At        time.Time       `json:"at"`
	ActorID   uuid.UUID       `json:"actor_id"`
	ActorName string          `json:"actor_name,omitempty"`
	Action    string          `json:"action"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// Result is a page of the timeline.
type Result struct {
	Rows   []TimelineRow   `json:"rows"`
	Paging shared.PageInfo `json:"paging"`
}
