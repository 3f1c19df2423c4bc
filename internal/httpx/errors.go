package httpx

import (
	"net/http"

	"github.com/sundayezeilo/linkstat/internal/errx"
)

type kindMapping struct {
	status int
	code   string
}

// Kinds missing from this table are treated as internal errors.
var kindMappings = map[errx.Kind]kindMapping{
	errx.NotFound:    {http.StatusNotFound, "not_found"},
	errx.Conflict:    {http.StatusConflict, "conflict"},
	errx.Invalid:     {http.StatusBadRequest, "invalid_input"},
	errx.Exhausted:   {http.StatusServiceUnavailable, "generation_exhausted"},
	errx.Unavailable: {http.StatusServiceUnavailable, "unavailable"},
	errx.Internal:    {http.StatusInternalServerError, "internal_error"},
}

var internalMapping = kindMapping{http.StatusInternalServerError, "internal_error"}

func lookupKind(kind errx.Kind) kindMapping {
	if m, ok := kindMappings[kind]; ok {
		return m
	}
	return internalMapping
}

// ErrorKindToStatus maps errx.Kind to an HTTP status code.
func ErrorKindToStatus(kind errx.Kind) int {
	return lookupKind(kind).status
}

// ErrorKindToCode maps errx.Kind to the "error" field of ErrorResponse.
func ErrorKindToCode(kind errx.Kind) string {
	return lookupKind(kind).code
}
