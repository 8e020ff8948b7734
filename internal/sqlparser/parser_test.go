package sqlparser

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	debug = false
)

func TestMain(m *testing.M) {
	debug, _ = strconv.ParseBool(os.Getenv("DEBUG_TEST"))
	os.Exit(m.Run())
}

func TestParseSections(t *testing.T) {
	t.Parallel()

	type testData struct {
		name string
		sql  string
		want Queries
	}

	tt := []testData{
		{name: "empty", sql: "", want: Queries{}},
		{name: "comments_only", sql: "-- a migration\n\n-- nothing here\n", want: Queries{}},
		{
			name: "all_sections",
			sql:  allSections,
			want: Queries{
				Up:    "CREATE TABLE users (\n\tid INT NOT NULL PRIMARY KEY\n);\nCREATE INDEX ix_users ON users (id);",
				Down:  "DROP TABLE users;",
				Check: "SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = 'users';",
			},
		},
		{
			name: "any_order_and_case",
			sql:  "-- CHECK:\nSELECT 1;\n--Down:\nDROP TABLE t;\n--   Up:   \nCREATE TABLE t (id INT);\n",
			want: Queries{Up: "CREATE TABLE t (id INT);", Down: "DROP TABLE t;", Check: "SELECT 1;"},
		},
		{
			name: "blank_sections",
			sql:  "-- up:\n\n   \n-- down:\n-- check:\n",
			want: Queries{},
		},
		{
			name: "comment_only_sections",
			sql:  "-- up:\n-- Write the statements here.\n\n-- down:\n  -- nothing\n-- check:\n-- SELECT 1;\n",
			want: Queries{},
		},
		{
			name: "comment_only_section_next_to_statements",
			sql:  "-- up:\n-- TODO\n-- down:\nDROP TABLE t;\n",
			want: Queries{Down: "DROP TABLE t;"},
		},
		{
			name: "comments_inside_sections_are_kept",
			sql:  "-- up:\n-- create the table\nCREATE TABLE t (id INT); -- inline\n",
			want: Queries{Up: "-- create the table\nCREATE TABLE t (id INT); -- inline"},
		},
		{
			name: "batch_separators_are_not_split",
			sql:  "-- up:\nCREATE PROCEDURE p AS\nBEGIN\n\tSELECT 1;\nEND\n",
			want: Queries{Up: "CREATE PROCEDURE p AS\nBEGIN\n\tSELECT 1;\nEND"},
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(strings.NewReader(test.sql), WithVerbose(debug))
			require.NoError(t, err)
			require.Equal(t, test.want, *got)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sql  string
		want error
	}{
		{name: "duplicate_up", sql: "-- up:\nSELECT 1;\n-- up:\nSELECT 2;\n", want: ErrDuplicateSection},
		{name: "duplicate_check_mixed_case", sql: "-- check:\n-- Check:\n", want: ErrDuplicateSection},
		{name: "statement_before_annotation", sql: "CREATE TABLE t (id INT);\n-- up:\n", want: ErrUnexpectedStatement},
	}
	for _, test := range tests {
		_, err := Parse(strings.NewReader(test.sql), WithVerbose(debug))
		require.ErrorIs(t, err, test.want, test.name)
		require.Contains(t, err.Error(), "line ", test.name)
	}
}

func TestEnvsub(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"SCHEMA": "app",
		"OWNER":  "deploy",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	t.Run("disabled_by_default", func(t *testing.T) {
		got, err := Parse(strings.NewReader("-- up:\nCREATE SCHEMA ${SCHEMA};\n"), WithLookupEnv(lookup))
		require.NoError(t, err)
		require.Equal(t, "CREATE SCHEMA ${SCHEMA};", got.Up)
	})
	t.Run("option", func(t *testing.T) {
		got, err := Parse(strings.NewReader("-- up:\nCREATE SCHEMA ${SCHEMA} AUTHORIZATION ${OWNER};\n"),
			WithEnvsub(true), WithLookupEnv(lookup))
		require.NoError(t, err)
		require.Equal(t, "CREATE SCHEMA app AUTHORIZATION deploy;", got.Up)
	})
	t.Run("annotations", func(t *testing.T) {
		sql := `-- +envsub ON
-- up:
CREATE SCHEMA ${SCHEMA};
-- +envsub off
-- down:
DROP SCHEMA ${SCHEMA};
`
		got, err := Parse(strings.NewReader(sql), WithLookupEnv(lookup))
		require.NoError(t, err)
		require.Equal(t, "CREATE SCHEMA app;", got.Up)
		require.Equal(t, "DROP SCHEMA ${SCHEMA};", got.Down)
	})
	t.Run("default_value", func(t *testing.T) {
		got, err := Parse(strings.NewReader("-- up:\nSELECT '${MISSING:-fallback}';\n"),
			WithEnvsub(true), WithLookupEnv(lookup))
		require.NoError(t, err)
		require.Equal(t, "SELECT 'fallback';", got.Up)
	})
	t.Run("invalid_reference", func(t *testing.T) {
		_, err := Parse(strings.NewReader("-- up:\nSELECT '${UNTERMINATED';\n"),
			WithEnvsub(true), WithLookupEnv(lookup))
		require.Error(t, err)
		require.False(t, errors.Is(err, ErrDuplicateSection))
		require.Contains(t, err.Error(), "line 2")
	})
}

var allSections = `-- 2026-01-01 add users table by jane

-- up:
CREATE TABLE users (
	id INT NOT NULL PRIMARY KEY
);
CREATE INDEX ix_users ON users (id);

-- down:
DROP TABLE users;

-- check:
SELECT 1 FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_NAME = 'users';
`
