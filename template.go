package migrat

import (
	_ "embed"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/migration.mssql
var migrationTemplate string

var migrationTmpl = template.Must(template.New("migration.mssql").Funcs(template.FuncMap{
	// Replaced at execution time with values from TemplateDetails.
	"date":        func() string { return "" },
	"attribution": func() string { return "" },
}).Parse(migrationTemplate))

// TemplateDetails describes a migration file being created.
type TemplateDetails struct {
	// Timestamp is the creation time.
	Timestamp time.Time
	// User is the author. Empty means no attribution.
	User string
}

// Template renders the scaffold of a new migration file.
func Template(details TemplateDetails) (string, error) {
	attribution := ""
	if details.User != "" {
		attribution = " by " + details.User
	}
	tmpl, err := migrationTmpl.Clone()
	if err != nil {
		return "", err
	}
	tmpl.Funcs(template.FuncMap{
		"date":        func() string { return details.Timestamp.Format(time.RFC1123Z) },
		"attribution": func() string { return attribution },
	})
	var sb strings.Builder
	if err := tmpl.Execute(&sb, nil); err != nil {
		return "", err
	}
	return sb.String(), nil
}
