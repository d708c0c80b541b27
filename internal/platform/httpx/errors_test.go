package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{shared.Validation("bad qty"), http.StatusBadRequest, "invalid_input"},
		{shared.NewError(shared.KindAuthorization, "owner_only", "owners only"), http.StatusForbidden, "owner_only"},
		{fmt.Errorf("wrap: %w", shared.NewError(shared.KindStateConflict, "empty_plan", "empty")), http.StatusConflict, "empty_plan"},
		{shared.NotFound("plan"), http.StatusNotFound, "plan_not_found"},
		{shared.Dependency(errors.New("timeout")), http.StatusBadGateway, "store_failure"},
		{errors.New("unclassified"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code)

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.code, body.Code)
		require.Equal(t, tc.status >= 500, body.Retryable)
	}
}
