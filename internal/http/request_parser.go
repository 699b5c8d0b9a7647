package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"zbudget/internal/core"
)

const dateLayout = "2006-01-02"

// decodeJSON parses the request body into dst, rejecting unknown fields so
// typos surface as 400s instead of silently dropped data.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

var errBadBody = fmt.Errorf("malformed request body")

// parseAmount converts a decimal string ("150.00", "-42.5") to cents.
func parseAmount(s string) (core.Money, error) {
	return core.ParseMoney(strings.TrimSpace(s))
}

// parseDate parses a YYYY-MM-DD date.
func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", core.ErrZeroDate, s)
	}
	return d, nil
}

// parseOptionalDate treats an empty string as a zero time.
func parseOptionalDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseDate(s)
}
