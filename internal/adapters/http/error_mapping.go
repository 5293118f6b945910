package httpadapter

import (
	"errors"
	"net/http"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrInvalidTarget):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnknownBucket):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateCode),
		domain.IsKind(err, domain.ErrRunInProgress),
		domain.IsKind(err, domain.ErrRunNotIdle),
		domain.IsKind(err, domain.ErrBucketNotEmpty):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
