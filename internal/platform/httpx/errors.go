// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tutti-stock/tutti-stock/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		Problem(w, http.StatusBadRequest, "Validation Failed", verrs.Error(), "invalid_input")
		return
	}
	var domain *shared.Error
	if !errors.As(err, &domain) {
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "")
		return
	}
	switch domain.Kind {
	case shared.KindValidation:
		Problem(w, http.StatusBadRequest, "Validation Failed", domain.Message, domain.Code)
	case shared.KindAuthorization:
		Problem(w, http.StatusForbidden, "Forbidden", domain.Message, domain.Code)
	case shared.KindStateConflict:
		Problem(w, http.StatusConflict, "Conflict", domain.Message, domain.Code)
	case shared.KindNotFound:
		Problem(w, http.StatusNotFound, "Not Found", domain.Message, domain.Code)
	default:
		Problem(w, http.StatusBadGateway, "Dependency Failure", shared.UserMessage(domain), domain.Code)
	}
}
