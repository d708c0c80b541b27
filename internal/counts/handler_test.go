package counts

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/rbac"
)

func TestCurrentWeekUsesUTC(t *testing.T) {
	f := newFixture(t)
	eastern := time.FixedZone("EST", -5*60*60)
	// Saturday 21:00 local is already Sunday 02:00 UTC.
	*f.now = time.Date(2024, 3, 16, 21, 0, 0, 0, eastern)

	require.Equal(t, time.Date(2024, 3, 17, 0, 0, 0, 0, time.UTC), f.svc.CurrentWeek())

	h := NewHandler(nil, f.svc, rbac.Middleware{})
	rec := httptest.NewRecorder()
	h.currentWeek(rec, httptest.NewRequest(http.MethodGet, "/current-week", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "2024-03-17", body["week_of"])
}

func TestComparisonWeeksFollowUTC(t *testing.T) {
	eastern := time.FixedZone("EST", -5*60*60)
	weeks := ComparisonWeeks(time.Date(2024, 3, 16, 21, 0, 0, 0, eastern))
	require.Equal(t, "2024-03-17", weeks[2].Format("2006-01-02"))
	require.Equal(t, time.UTC, weeks[0].Location())
}
