package database

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"
)

// NewStruct returns a PostgreSQL-flavored struct mapper keyed on `db` tags.
func NewStruct(v any) *sqlbuilder.Struct {
	return sqlbuilder.NewStruct(v).For(sqlbuilder.PostgreSQL)
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}

func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

// IsNoRows matches the error sqlx returns from GetContext on an empty result.
func IsNoRows(err error) bool {
	return err != nil && err.Error() == "sql: no rows in result set"
}
