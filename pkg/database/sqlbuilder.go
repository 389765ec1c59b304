package database

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

func NewInsertBuilder() *sqlbuilder.InsertBuilder {
	return sqlbuilder.PostgreSQL.NewInsertBuilder()
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

// OnConflictDoNothing appends the postgres upsert guard to an insert.
func OnConflictDoNothing(ib *sqlbuilder.InsertBuilder) *sqlbuilder.InsertBuilder {
	ib.SQL("ON CONFLICT DO NOTHING")
	return ib
}

// ForUpdate appends a row lock to a select.
func ForUpdate(sb *sqlbuilder.SelectBuilder) *sqlbuilder.SelectBuilder {
	sb.SQL("FOR UPDATE")
	return sb
}

// JSONPath renders attrs->>'key' for filtering on a jsonb attribute.
func JSONPath(column, key string) string {
	return fmt.Sprintf("%s->>'%s'", column, key)
}
