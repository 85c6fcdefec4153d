package servicenow

import "testing"

func TestQueryBuilder_Empty(t *testing.T) {
	if got := NewQueryBuilder().Build(); got != "" {
		t.Errorf("empty builder = %q, want empty string", got)
	}
}

func TestQueryBuilder_WhereEquals(t *testing.T) {
	got := NewQueryBuilder().WhereEquals("active", "true").Build()
	if got != "active=true" {
		t.Errorf("query = %q", got)
	}
}

func TestQueryBuilder_Chaining(t *testing.T) {
	got := NewQueryBuilder().
		WhereEquals("active", "true").
		OrderByDesc("sys_updated_on").
		Build()
	if got != "active=true^ORDERBYDESCsys_updated_on" {
		t.Errorf("query = %q", got)
	}
}

func TestQueryBuilder_OrderByAsc(t *testing.T) {
	got := NewQueryBuilder().OrderByAsc("number").Build()
	if got != "ORDERBYnumber" {
		t.Errorf("query = %q", got)
	}
}

func TestQueryBuilder_EscapesCarets(t *testing.T) {
	got := NewQueryBuilder().WhereEquals("description", "a^b").Build()
	if got != "description=a^^b" {
		t.Errorf("query = %q", got)
	}
}
