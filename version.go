package migrat

// Name is the name the plugin registers under.
const Name = "migrat-mssql"

// version is set at build time with -ldflags "-X github.com/pressly/migrat-mssql.version=...".
var version = "devel"

// Version returns the plugin version.
func Version() string { return version }
