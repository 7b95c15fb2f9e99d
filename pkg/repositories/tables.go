package repositories

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Tables holds the quoted, schema-qualified table names. They are resolved
// once from configuration at startup and never looked up at query time.
type Tables struct {
	Contracts  string
	Suppliers  string
	Amendments string
	Inquiries  string
}

// NewTables validates and quotes the configured table names. Names may be
// schema-qualified ("registry.contracts") and must be lower-case identifiers.
func NewTables(cfg config.TablesConfig) (Tables, error) {
	var t Tables
	for _, item := range []struct {
		name string
		dst  *string
	}{
		{cfg.Contracts, &t.Contracts},
		{cfg.Suppliers, &t.Suppliers},
		{cfg.Amendments, &t.Amendments},
		{cfg.Inquiries, &t.Inquiries},
	} {
		quoted, err := quoteTable(item.name)
		if err != nil {
			return Tables{}, err
		}
		*item.dst = quoted
	}
	return t, nil
}

// DefaultTables returns handles for the canonical schema.
func DefaultTables() Tables {
	t, _ := NewTables(config.TablesConfig{
		Contracts:  "contracts",
		Suppliers:  "suppliers",
		Amendments: "amendments",
		Inquiries:  "inquiries",
	})
	return t
}

func quoteTable(name string) (string, error) {
	parts := strings.Split(strings.TrimSpace(name), ".")
	if len(parts) > 2 {
		return "", fmt.Errorf("invalid table name %q", name)
	}
	for _, p := range parts {
		if !identifierPattern.MatchString(p) {
			return "", fmt.Errorf("invalid table name %q", name)
		}
	}
	return pgx.Identifier(parts).Sanitize(), nil
}
