package adapter

import (
	"errors"
	"fmt"
)

// ErrInstanceHibernating reports that the instance answered with its
// hibernation page instead of Table API data. Developer instances do
// this after a period of inactivity until they are woken up.
var ErrInstanceHibernating = errors.New("servicenow instance is hibernating")

// ErrMissingBody reports a reply that was absent or carried no usable body.
var ErrMissingBody = errors.New("response has no body")

// errMissingResult reports a parsed reply without a result field.
var errMissingResult = errors.New("reply has no result field")

// ConfigurationError reports a missing adapter property. It is
// detected during construction, before any request is made.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required adapter property: %s", e.Field)
}

// MalformedResponseError reports a reply that arrived intact but whose
// body could not be interpreted as change request data.
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed %s response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
