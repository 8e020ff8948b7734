package dialectquery

// Querier is the interface that wraps the basic methods to create a dialect specific query for
// the metadata table.
//
// Unless noted otherwise, every returned query binds its values as positional parameters in the
// order documented on the method. Only the schema and table identifiers are formatted into the
// query text, and callers must validate them first.
type Querier interface {
	// SchemaExists returns the catalog query and its arguments that yields at least one row when
	// the metadata schema exists. An empty query means the dialect has no schemas to provision.
	SchemaExists() (string, []any)

	// CreateSchema returns the query to create the metadata schema. It must be safe to run when
	// the schema already exists.
	CreateSchema() string

	// TableExists returns the catalog query and its arguments that yields at least one row when
	// the metadata table exists.
	TableExists() (string, []any)

	// CreateTable returns the query to create the metadata table. It must be safe to run when the
	// table already exists.
	CreateTable() string

	// GetValue returns the query to select the value for a key.
	//
	// Arguments: key.
	GetValue() string

	// UpdateValue returns the query to overwrite the value of an existing key.
	//
	// Arguments: value, key.
	UpdateValue() string

	// InsertValue returns the query to insert a key only if no row exists for it.
	//
	// Arguments: key, value, key.
	InsertValue() string

	// SelectLock returns the query, run inside the lock transaction, to select the lock row. On
	// dialects that support it the row range is locked until the transaction ends.
	//
	// Arguments: key.
	SelectLock() string

	// InsertLock returns the query to insert the lock row.
	//
	// Arguments: key, value.
	InsertLock() string

	// DeleteValue returns the query to delete a key.
	//
	// Arguments: key.
	DeleteValue() string

	// DeleteValueIf returns the query to delete a key only when it holds the given value.
	//
	// Arguments: key, value.
	DeleteValueIf() string
}

const (
	// KeyColumn and ValueColumn are the metadata table columns. The key column is not named "key"
	// because that is a reserved word on several dialects.
	KeyColumn   = "migratkey"
	ValueColumn = "value"

	// KeyMaxLength is the maximum length of a key.
	KeyMaxLength = 22
)
