// Package query provides SQL query building utilities with projection mapping.
package query

import (
	"fmt"
	"strings"
)

// ProjectionMap maps view property names to qualified column references (alias.column).
// An empty schema leaves the table unqualified, which both PostgreSQL and SQLite accept.
type ProjectionMap struct {
	schema     string
	table      string
	alias      string
	current    string
	joins      []string
	columns    map[string]string
	columnList []string
}

// NewProjectionMap creates a ProjectionMap for the given schema, table, and alias.
// Pass an empty schema for driver-neutral queries.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		schema:     schema,
		table:      table,
		alias:      alias,
		current:    alias,
		columns:    make(map[string]string),
		columnList: make([]string, 0),
	}
}

// Project adds a column mapping from database column to view property name.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	qualified := fmt.Sprintf("%s.%s", p.current, column)
	p.columns[viewName] = qualified
	p.columnList = append(p.columnList, qualified)
	return p
}

// Alias returns the table alias.
func (p *ProjectionMap) Alias() string {
	return p.alias
}

// Table returns the table reference with alias ("schema.table alias" or "table alias").
func (p *ProjectionMap) Table() string {
	if p.schema == "" {
		return fmt.Sprintf("%s %s", p.table, p.alias)
	}
	return fmt.Sprintf("%s.%s %s", p.schema, p.table, p.alias)
}

// From returns the FROM clause target, including any joined tables.
func (p *ProjectionMap) From() string {
	from := p.Table()
	for _, j := range p.joins {
		from += " " + j
	}
	return from
}

// Join adds a joined table. Columns projected after Join are qualified with the join alias.
func (p *ProjectionMap) Join(schema, table, alias, kind, on string) *ProjectionMap {
	ref := table
	if schema != "" {
		ref = schema + "." + table
	}
	p.joins = append(p.joins, fmt.Sprintf("%s %s %s ON %s", kind, ref, alias, on))
	p.current = alias
	return p
}

// Column returns the qualified column for a view property name, or the input if not mapped.
func (p *ProjectionMap) Column(viewName string) string {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return viewName
}

// Columns returns all mapped columns as a comma-separated string.
func (p *ProjectionMap) Columns() string {
	return strings.Join(p.columnList, ", ")
}

// ColumnList returns all mapped columns as a slice.
func (p *ProjectionMap) ColumnList() []string {
	return p.columnList
}

// Has reports whether viewName is a projected property.
func (p *ProjectionMap) Has(viewName string) bool {
	_, ok := p.columns[viewName]
	return ok
}
