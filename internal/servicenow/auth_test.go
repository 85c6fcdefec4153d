package servicenow

import (
	"context"
	"encoding/base64"
	"testing"
)

func TestBasicAuthenticator(t *testing.T) {
	auth := NewBasicAuthenticator("admin", "admin123")
	defer auth.Close()

	token, err := auth.Token(context.Background())
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:admin123"))
	if token != want {
		t.Errorf("token = %q, want %q", token, want)
	}
}

func TestBasicAuthenticator_TokenIsStable(t *testing.T) {
	auth := NewBasicAuthenticator("admin", "admin123")
	defer auth.Close()

	first, _ := auth.Token(context.Background())
	second, _ := auth.Token(context.Background())
	if first != second {
		t.Error("basic auth header should not change between calls")
	}
}
