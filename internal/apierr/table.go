package apierr

import (
	"encoding/json"
	"errors"
	"strings"
)

// Table maps HTTP status codes to error kinds. Tables are copy-on-write:
// Extend returns a new table and never mutates its receiver, so a published
// table shared by constructed adapters is effectively immutable.
type Table struct {
	codes map[int]ErrorKind
}

// DefaultTable returns the entries every adapter starts from:
// 401,403 authentication; 404 not found; 429 rate limit; 400,422
// validation. Unmapped codes classify as the generic API kind.
func DefaultTable() Table {
	return Table{codes: map[int]ErrorKind{
		401: KindAuthentication,
		403: KindAuthentication,
		404: KindNotFound,
		429: KindRateLimit,
		400: KindValidation,
		422: KindValidation,
	}}
}

// Extend returns a copy of the table with the given entries added or
// overridden. The receiver is left untouched.
func (t Table) Extend(overrides map[int]ErrorKind) Table {
	merged := make(map[int]ErrorKind, len(t.codes)+len(overrides))
	for code, kind := range t.codes {
		merged[code] = kind
	}
	for code, kind := range overrides {
		merged[code] = kind
	}
	return Table{codes: merged}
}

// KindFor returns the error kind mapped to an HTTP status code.
func (t Table) KindFor(status int) ErrorKind {
	if kind, ok := t.codes[status]; ok {
		return kind
	}
	return KindAPI
}

// errorBody covers the error shapes backends commonly return. Anything
// that does not parse degrades to the raw body string.
type errorBody struct {
	Message       string          `json:"message"`
	Error         string          `json:"error"`
	ErrorMessages []string        `json:"errorMessages"`
	Errors        json.RawMessage `json:"errors"`
}

// Translate converts a transport failure into a classified Error. Already
// classified errors pass through untouched, preserving the
// translate-exactly-once rule. Cancellation, timeouts, and other failures
// below the HTTP layer classify as connection errors.
func (t Table) Translate(err error) error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return err
	}

	var status *StatusError
	if errors.As(err, &status) {
		kind := t.KindFor(status.StatusCode)
		message, fields := parseErrorBody(status.Body)
		return &Error{
			Kind:       kind,
			Message:    message,
			StatusCode: status.StatusCode,
			Body:       string(status.Body),
			Fields:     fields,
			RetryAfter: status.RetryAfter,
			cause:      err,
		}
	}

	return &Error{
		Kind:    KindConnection,
		Message: err.Error(),
		cause:   err,
	}
}

// parseErrorBody extracts a human message and, where present, per-field
// detail from a backend error body. Unparseable bodies fall back to the
// raw string; parsing never raises a secondary failure.
func parseErrorBody(body []byte) (string, map[string]string) {
	fallback := strings.TrimSpace(string(body))

	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fallback, nil
	}

	fields := parseFieldErrors(parsed.Errors)

	var parts []string
	if parsed.Message != "" {
		parts = append(parts, parsed.Message)
	}
	if parsed.Error != "" {
		parts = append(parts, parsed.Error)
	}
	parts = append(parts, parsed.ErrorMessages...)

	if len(parts) == 0 && len(fields) == 0 {
		return fallback, nil
	}
	if len(parts) == 0 {
		return fallback, fields
	}
	return strings.Join(parts, "; "), fields
}

// parseFieldErrors accepts either the object form {"field": "message"} or
// the list form [{"field": ..., "message": ...}].
func parseFieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}

	var byField map[string]string
	if err := json.Unmarshal(raw, &byField); err == nil && len(byField) > 0 {
		return byField
	}

	var list []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		fields := make(map[string]string, len(list))
		for _, item := range list {
			if item.Field != "" {
				fields[item.Field] = item.Message
			}
		}
		if len(fields) > 0 {
			return fields
		}
	}

	return nil
}
