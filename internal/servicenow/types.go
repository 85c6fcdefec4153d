// Package servicenow provides types and utilities for interacting with the ServiceNow Table API.
package servicenow

import (
	"bytes"
	"strings"
)

// Record represents a single ServiceNow table record as a map of field names to values.
type Record map[string]interface{}

// TableResponse represents the JSON body of a Table API list query.
type TableResponse struct {
	Result []Record `json:"result"`
}

// RecordResponse represents the JSON body of a Table API single-record
// reply, as returned by record creation.
type RecordResponse struct {
	Result Record `json:"result"`
}

// ErrorResponse represents a ServiceNow API error response body.
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

// hibernationMarker appears in the HTML landing page a developer instance
// serves while asleep. That page arrives with 200 OK, so it cannot be told
// apart from a healthy reply by status code alone.
const hibernationMarker = "hibernating"

// Response is the raw outcome of a single Table API request. The connector
// hands it back as received; interpreting the body belongs to the caller.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte

	// Err carries the instance's own error text when a 2xx reply still
	// included an error envelope. Empty on clean replies.
	Err string
}

// HasBody reports whether the response carries a non-blank body.
func (r *Response) HasBody() bool {
	return r != nil && len(bytes.TrimSpace(r.Body)) > 0
}

// Hibernating reports whether the response is the instance's hibernation
// page rather than an API reply: a 2xx status whose body is an HTML
// document carrying the hibernation marker.
func (r *Response) Hibernating() bool {
	if r == nil || r.StatusCode < 200 || r.StatusCode >= 300 {
		return false
	}
	body := bytes.TrimSpace(r.Body)
	if len(body) == 0 {
		return false
	}
	if !strings.Contains(r.ContentType, "text/html") && body[0] != '<' {
		return false
	}
	return bytes.Contains(bytes.ToLower(body), []byte(hibernationMarker))
}
