// Package servicenow provides a ServiceNow Table API query builder.
package servicenow

import (
	"fmt"
	"strings"
)

// ServiceNow query syntax constants.
const (
	snAND         = "^"
	snIS          = "="
	snORDERBY     = "ORDERBY"
	snORDERBYDESC = "ORDERBYDESC"
)

// QueryBuilder constructs ServiceNow encoded query strings using a fluent API.
//
// Example output: "active=true^ORDERBYDESCsys_updated_on"
type QueryBuilder struct {
	query strings.Builder
}

// NewQueryBuilder creates a new empty QueryBuilder.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// sanitizeValue escapes the '^' character in values to prevent query injection.
// In ServiceNow query syntax, '^' is the AND separator, so literal carets in
// values must be escaped as '^^'.
func sanitizeValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return v
	}
	return strings.ReplaceAll(v, snAND, snAND+snAND)
}

// Build returns the final query string, stripping the leading '^' separator.
func (q *QueryBuilder) Build() string {
	s := q.query.String()
	return strings.TrimLeft(s, "^")
}

// WhereEquals adds: ^field=value
func (q *QueryBuilder) WhereEquals(field, value string) *QueryBuilder {
	value = sanitizeValue(value)
	fmt.Fprintf(&q.query, "%s%s%s%s", snAND, field, snIS, value)
	return q
}

// OrderByAsc adds: ^ORDERBYfield
func (q *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	field = sanitizeValue(field)
	fmt.Fprintf(&q.query, "%s%s%s", snAND, snORDERBY, field)
	return q
}

// OrderByDesc adds: ^ORDERBYDESCfield
func (q *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	field = sanitizeValue(field)
	fmt.Fprintf(&q.query, "%s%s%s", snAND, snORDERBYDESC, field)
	return q
}
