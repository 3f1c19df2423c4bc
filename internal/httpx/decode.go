package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// MaxRequestBodySize caps request bodies at 1MB.
const MaxRequestBodySize = 1 << 20

var (
	ErrEmptyBody            = errors.New("request body is empty")
	ErrUnsupportedMediaType = errors.New("content type must be application/json")
)

// DecodeJSON decodes exactly one JSON object from the request body into T.
// A Content-Type other than application/json is rejected with
// ErrUnsupportedMediaType; a missing one is accepted. Unknown fields and
// bodies over MaxRequestBodySize are rejected.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var v T

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return v, ErrUnsupportedMediaType
		}
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)
	defer func() { _ = r.Body.Close() }()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&v); err != nil {
		var zero T
		return zero, decodeError(err)
	}

	if decoder.More() {
		var zero T
		return zero, errors.New("request body contains multiple JSON objects")
	}

	return v, nil
}

func decodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalErr):
		return fmt.Errorf("invalid value for field %q", unmarshalErr.Field)
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
	case errors.Is(err, io.EOF):
		return ErrEmptyBody
	case errors.Is(err, io.ErrUnexpectedEOF):
		return errors.New("malformed JSON: unexpected end of input")
	default:
		return fmt.Errorf("failed to decode JSON: %w", err)
	}
}
