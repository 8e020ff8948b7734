package dialectquery

import "fmt"

// Sqlite3 has no schemas. The schema name is folded into the table name as a prefix, so schema
// "m" and table "migrations" become the table "m_migrations".
type Sqlite3 struct {
	Schema string
	Table  string
}

var _ Querier = (*Sqlite3)(nil)

func (s *Sqlite3) SchemaExists() (string, []any) {
	return "", nil
}

func (s *Sqlite3) CreateSchema() string {
	return ""
}

func (s *Sqlite3) TableExists() (string, []any) {
	q := `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`
	return q, []any{s.TableName()}
}

func (s *Sqlite3) CreateTable() string {
	q := `CREATE TABLE IF NOT EXISTS %q (
		migratkey VARCHAR(22) NOT NULL PRIMARY KEY,
		value TEXT
	)`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) GetValue() string {
	q := `SELECT value FROM %q WHERE migratkey = ?`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) UpdateValue() string {
	q := `UPDATE %q SET value = ? WHERE migratkey = ?`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) InsertValue() string {
	q := `INSERT INTO %q (migratkey, value) SELECT ?, ?
	WHERE NOT EXISTS (SELECT 1 FROM %q WHERE migratkey = ?)`
	return fmt.Sprintf(q, s.TableName(), s.TableName())
}

func (s *Sqlite3) SelectLock() string {
	q := `SELECT value FROM %q WHERE migratkey = ?`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) InsertLock() string {
	q := `INSERT INTO %q (migratkey, value) VALUES (?, ?)`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) DeleteValue() string {
	q := `DELETE FROM %q WHERE migratkey = ?`
	return fmt.Sprintf(q, s.TableName())
}

func (s *Sqlite3) DeleteValueIf() string {
	q := `DELETE FROM %q WHERE migratkey = ? AND value = ?`
	return fmt.Sprintf(q, s.TableName())
}

// TableName returns the physical table name.
func (s *Sqlite3) TableName() string {
	if s.Schema == "" {
		return s.Table
	}
	return s.Schema + "_" + s.Table
}
