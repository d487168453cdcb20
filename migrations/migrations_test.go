package migrations

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var fileName = regexp.MustCompile(`^(\d{6})_[a-z_]+\.(up|down)\.sql$`)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		m := fileName.FindStringSubmatch(e.Name())
		require.NotNil(t, m, "unexpected migration file %s", e.Name())
		if m[2] == "up" {
			ups[m[1]] = true
		} else {
			downs[m[1]] = true
		}
	}
	require.Equal(t, ups, downs)
}

func TestSchemaDeclaresLedgerTables(t *testing.T) {
	var all strings.Builder
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(FS, e.Name())
		require.NoError(t, err)
		all.Write(body)
	}
	schema := all.String()
	for _, table := range []string{
		"stock_balances", "stock_movements", "document_sequences",
		"purchases", "purchase_lines", "transfers", "transfer_lines",
		"consignment_deliveries", "consignment_delivery_lines",
		"stock_count_sessions", "stock_count_lines",
		"audit_logs", "idempotency_keys",
	} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	require.Contains(t, schema, "PRIMARY KEY (product_id, location_kind, location_id)")
	require.Contains(t, schema, "UNIQUE (session_id, product_id)")
}
