// Package servicenow provides authentication for ServiceNow API access.
//
// The adapter's connection properties carry a username/password pair, so
// the connector authenticates every request with HTTP Basic Auth. The
// credentials are encoded once at construction time per RFC 7617; the
// [Authenticator] interface keeps header construction swappable for tests
// and for instances that later move to token-based auth.
package servicenow

import (
	"context"
	"encoding/base64"
)

// Authenticator provides the Authorization header value for Table API
// requests. Implementations must be safe for concurrent use.
type Authenticator interface {
	// Token returns the current authentication header value, for basic
	// auth "Basic <base64>". The context allows cancellation during token
	// acquisition.
	Token(ctx context.Context) (string, error)

	// Close stops any background work owned by the authenticator.
	Close()
}

// BasicAuthenticator implements the Authenticator interface using HTTP
// Basic Authentication. The credentials are encoded once at construction
// time and never expire.
type BasicAuthenticator struct {
	header string
}

// NewBasicAuthenticator creates a BasicAuthenticator from the given credentials.
// The username:password pair is base64-encoded per RFC 7617.
func NewBasicAuthenticator(username, password string) *BasicAuthenticator {
	encoded := base64.StdEncoding.EncodeToString(
		[]byte(username + ":" + password),
	)
	return &BasicAuthenticator{
		header: "Basic " + encoded,
	}
}

// Token returns the pre-computed "Basic <base64>" header value.
func (b *BasicAuthenticator) Token(_ context.Context) (string, error) {
	return b.header, nil
}

// Close is a no-op for basic auth, which owns no background work.
func (b *BasicAuthenticator) Close() {}
