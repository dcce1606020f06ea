package query

import (
	"fmt"
	"reflect"
	"strings"
)

// SortField is one ORDER BY key. Field is a projected view name.
type SortField struct {
	Field      string
	Descending bool
}

// ParseSortFields parses a comma-separated sort string such as "StudentID,-FirstEvaluatedAt".
// A leading "-" sorts descending. Empty input yields nil.
func ParseSortFields(s string) []SortField {
	if s == "" {
		return nil
	}

	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// condition renders a WHERE fragment. param binds a value and returns its placeholder.
type condition func(param func(any) string) string

// Builder assembles SELECT statements over a ProjectionMap with numbered
// ($1, $2, ...) placeholders, accepted by both the pgx and sqlite drivers.
type Builder struct {
	projection  *ProjectionMap
	conditions  []condition
	orderBy     []SortField
	defaultSort []SortField
}

// NewBuilder creates a Builder for the given projection with optional default sort fields.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{
		projection:  projection,
		defaultSort: defaultSort,
	}
}

// OrderByFields sets the sort order, overriding the default sort fields.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.orderBy = fields
	return b
}

// WhereEquals adds an equality condition. Nil values add nothing.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	col := b.projection.Column(field)
	b.conditions = append(b.conditions, func(param func(any) string) string {
		return col + " = " + param(value)
	})
	return b
}

// WhereSearch adds a case-insensitive substring match ORed across fields.
// LIKE wildcards in the search text match literally. Nil or blank search adds nothing.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	pattern := "%" + escapeLike(*search) + "%"
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = b.projection.Column(f)
	}

	b.conditions = append(b.conditions, func(param func(any) string) string {
		clauses := make([]string, len(cols))
		for i, col := range cols {
			clauses[i] = fmt.Sprintf(`LOWER(%s) LIKE LOWER(%s) ESCAPE '\'`, col, param(pattern))
		}
		if len(clauses) == 1 {
			return clauses[0]
		}
		return "(" + strings.Join(clauses, " OR ") + ")"
	})
	return b
}

// Build returns a SELECT query with the current conditions and ordering.
func (b *Builder) Build() (string, []any) {
	where, args := b.where()
	return fmt.Sprintf(
		"SELECT %s FROM %s%s%s",
		b.projection.Columns(), b.projection.From(), where, b.order(),
	), args
}

// BuildCount returns a COUNT(*) query with the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.where()
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", b.projection.From(), where), args
}

// BuildPage returns a SELECT query for the 1-based page with its limit and offset.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	where, args := b.where()
	return fmt.Sprintf(
		"SELECT %s FROM %s%s%s LIMIT %d OFFSET %d",
		b.projection.Columns(), b.projection.From(), where, b.order(),
		pageSize, (page-1)*pageSize,
	), args
}

// BuildSingle returns a SELECT query for one record by key, ignoring other conditions.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = $1",
		b.projection.Columns(), b.projection.From(), b.projection.Column(idField),
	), []any{id}
}

func (b *Builder) where() (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	var args []any
	param := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	clauses := make([]string, len(b.conditions))
	for i, cond := range b.conditions {
		clauses[i] = cond(param)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (b *Builder) order() string {
	fields := b.orderBy
	if len(fields) == 0 {
		fields = b.defaultSort
	}
	if len(fields) == 0 {
		return ""
	}

	parts := make([]string, len(fields))
	for i, f := range fields {
		dir := "ASC"
		if f.Descending {
			dir = "DESC"
		}
		parts[i] = b.projection.Column(f.Field) + " " + dir
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}
