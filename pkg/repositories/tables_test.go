package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/config"
)

func TestNewTables(t *testing.T) {
	tables, err := NewTables(config.TablesConfig{
		Contracts:  "registry.contracts",
		Suppliers:  "suppliers",
		Amendments: "amendments",
		Inquiries:  "inquiries",
	})
	require.NoError(t, err)
	assert.Equal(t, `"registry"."contracts"`, tables.Contracts)
	assert.Equal(t, `"suppliers"`, tables.Suppliers)
}

func TestNewTables_RejectsInvalidNames(t *testing.T) {
	for _, name := range []string{"", "Contracts", "contracts; DROP TABLE x", "a.b.c", `con"tracts`} {
		_, err := NewTables(config.TablesConfig{
			Contracts:  name,
			Suppliers:  "suppliers",
			Amendments: "amendments",
			Inquiries:  "inquiries",
		})
		assert.Error(t, err, "name %q", name)
	}
}

func TestDefaultTables(t *testing.T) {
	tables := DefaultTables()
	assert.Equal(t, `"contracts"`, tables.Contracts)
	assert.Equal(t, `"inquiries"`, tables.Inquiries)
}
