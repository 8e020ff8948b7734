// Package database provides the Store used by migrat to provision and access its metadata table:
// a two-column key/value table living in a dedicated schema of the target database.
//
// The Store is generic over a small set of SQL dialects. Each dialect supplies its own catalog
// queries and DDL, while the algorithms (bootstrap, get, upsert, delete) are shared. Keys and
// values are always passed as bound parameters; only the schema and table identifiers are part of
// the query text, and they are validated by [NewStore].
package database
