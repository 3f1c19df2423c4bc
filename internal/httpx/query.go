package httpx

import (
	"fmt"
	"net/http"
	"strconv"
)

// QueryInt reads an integer query parameter. A missing or empty parameter
// yields def; a value that is not an integer is an error.
func QueryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %q must be an integer", name)
	}
	return v, nil
}
