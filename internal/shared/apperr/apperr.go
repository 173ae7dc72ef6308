// Package apperr defines the error kinds exposed by the fact store core.
// Handlers translate them to HTTP statuses at the edge; services return them
// wrapped so callers can test with errors.Is.
package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

var (
	// ErrInvalidGeometry covers out-of-range coordinates and degenerate lines.
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrInvalidRange covers radius/buffer outside configured bounds and
	// confidence outside [0,1].
	ErrInvalidRange = errors.New("invalid range")
	// ErrNotFound means a referenced fact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateFact marks an import-time duplicate. Non-fatal: importers
	// skip and continue.
	ErrDuplicateFact = errors.New("duplicate fact")
	// ErrConflict is an internal signal that a verification recompute lost a
	// race. It is retried locally and never reaches callers on success.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrTransient surfaces once conflict retries are exhausted.
	ErrTransient = errors.New("transient failure")
	// ErrStorageUnavailable means the storage backend is unreachable. Fatal
	// for the request, not the process.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// HTTPStatus maps an error kind to the status its handler should return.
// An empty result set is a successful answer and never comes through here.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidGeometry), errors.Is(err, ErrInvalidRange):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrDuplicateFact):
		return fiber.StatusConflict
	case errors.Is(err, ErrTransient), errors.Is(err, ErrStorageUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Fiber wraps err as a fiber error with the mapped status, so handlers can
// return fiber.NewError at the edge.
func Fiber(err error) error {
	return fiber.NewError(HTTPStatus(err), err.Error())
}
