package api

import (
	"errors"
	"net/http"

	"PaperDesk/internal/domain/models"
	domrepo "PaperDesk/internal/domain/repository"
	xhttp "PaperDesk/pkg/http"
)

// statusByKind maps domain error kinds onto HTTP statuses.
var statusByKind = map[models.ErrorKind]int{
	models.KindValidation:          http.StatusBadRequest,
	models.KindNotFound:            http.StatusNotFound,
	models.KindInvalidState:        http.StatusConflict,
	models.KindConcurrencyConflict: http.StatusConflict,
	models.KindLearningConflict:    http.StatusConflict,
	models.KindCapitalConstraint:   http.StatusUnprocessableEntity,
	models.KindDataUnavailable:     http.StatusServiceUnavailable,
}

// toAppError translates a use case error. It returns nil for errors that
// should surface as 500.
func toAppError(err error) *xhttp.AppError {
	var de *models.DomainError
	if errors.As(err, &de) {
		status, ok := statusByKind[de.Kind]
		if !ok {
			return nil
		}
		return xhttp.NewAppError(status, de.Code, de.Message).Wrap(err)
	}
	if errors.Is(err, domrepo.ErrNotFound) {
		return xhttp.NotFoundError("resource not found").Wrap(err)
	}
	return nil
}
