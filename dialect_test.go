package ygggo_sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Quoting(t *testing.T) {
	cases := []struct {
		d    Dialect
		in   string
		want string
	}{
		{MySQL, "users", "`users`"},
		{MySQL, "u.name", "`u`.`name`"},
		{MySQL, "u.*", "`u`.*"},
		{MySQL, "*", "*"},
		{MySQL, "we`ird", "`we``ird`"},
		{Postgres, "users", `"users"`},
		{Postgres, "public.users", `"public"."users"`},
		{Postgres, `we"ird`, `"we""ird"`},
		{SQLite, "t.c", `"t"."c"`},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.d.Alias(tc.in), "%s %q", tc.d.Name(), tc.in)
	}
}

func TestDialect_Placeholders(t *testing.T) {
	var s Sink
	assert.Equal(t, "?", MySQL.Value(&s, 1))
	assert.Equal(t, "?", MySQL.Value(&s, 2))
	assert.Equal(t, 2, s.Len())

	var p Sink
	assert.Equal(t, "$1", Postgres.Value(&p, "a"))
	assert.Equal(t, "$2", Postgres.Value(&p, "b"))
	assert.Equal(t, []any{"a", "b"}, p.Values())
}

func TestDialect_Operators(t *testing.T) {
	cases := []struct {
		d     Dialect
		token string
		want  string
	}{
		{MySQL, "!=", "<>"},
		{MySQL, "ilike", "LIKE"},
		{MySQL, "regexp", "REGEXP"},
		{MySQL, "NOT   In", "NOT IN"},
		{Postgres, "ilike", "ILIKE"},
		{Postgres, "regexp", "~"},
		{Postgres, "not regexp", "!~"},
		{Postgres, ">=", ">="},
		{SQLite, "like", "LIKE"},
	}
	for _, tc := range cases {
		got, err := tc.d.Operator(tc.token)
		require.NoError(t, err, "%s %q", tc.d.Name(), tc.token)
		assert.Equal(t, tc.want, got, "%s %q", tc.d.Name(), tc.token)
	}

	_, err := MySQL.Operator("~~")
	assert.True(t, errors.Is(err, ErrUnknownOperator))
}

func TestDialect_Registry(t *testing.T) {
	d, err := DialectFor("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = DialectFor("oracle")
	assert.ErrorIs(t, err, ErrUnknownDialect)

	RegisterDialect("mariadb", MySQL)
	d, err = DialectFor("mariadb")
	require.NoError(t, err)
	assert.Equal(t, EngineMySQL, d.Name())
}
