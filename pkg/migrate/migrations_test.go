package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = "-- +goose Up\nSELECT 1;\n\n-- +goose Down\nSELECT 1;\n"

func TestValidateAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, Validate(EmbeddedFS()))
	require.NoError(t, Validate(DirFS("migrations")))
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	inBinary, err := fs.Glob(EmbeddedFS(), "*.sql")
	require.NoError(t, err)

	require.NotEmpty(t, onDisk)
	assert.Len(t, inBinary, len(onDisk))
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"empty dir": {},
		"bad name": {
			"2025_create.sql": {Data: []byte(validBody)},
		},
		"uppercase slug": {
			"20250301090000_Create.sql": {Data: []byte(validBody)},
		},
		"duplicate version": {
			"20250301090000_a.sql": {Data: []byte(validBody)},
			"20250301090000_b.sql": {Data: []byte(validBody)},
		},
		"missing down": {
			"20250301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"down before up": {
			"20250301090000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")},
		},
		"unbalanced statement block": {
			"20250301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(fsys))
		})
	}
}

func TestValidateIgnoresNonSQLFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"README.md":            {Data: []byte("notes")},
		"20250301090000_a.sql": {Data: []byte(validBody)},
	}
	assert.NoError(t, Validate(fsys))
}

func TestOrdersMigrationConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")

	for _, want := range []string{
		"CONSTRAINT orders_status_check",
		"CONSTRAINT order_items_status_check",
		"CONSTRAINT order_items_refund_status_check",
		"'CANCELLED_BY_ADMIN'",
		"'PENDING_APPROVAL'",
		"ux_orders_checkout_session",
		"trg_order_items_price_immutable",
		"DROP TABLE IF EXISTS order_items;",
		"DROP TABLE IF EXISTS orders;",
	} {
		assert.Contains(t, content, want)
	}
}

func TestProductsMigrationGuardsStock(t *testing.T) {
	content := readMigration(t, "create_products")
	assert.Contains(t, content, "CHECK (stock >= 0)")
	assert.Contains(t, content, "DROP TABLE IF EXISTS products;")
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20250301090000")
	require.NoError(t, err)
	assert.Equal(t, int64(20250301090000), v)

	for _, bad := range []string{"", "2025", "2025030109000x", "-2025030109000"} {
		_, err := ParseVersion(bad)
		assert.Error(t, err, bad)
	}
}

func TestCreateWritesTimestampedMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	path, err := Create(dir, "  Add Refund  Index! ", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20250601123000_add_refund_index.sql"), path)
	require.NoError(t, Validate(DirFS(dir)))

	_, err = Create(dir, "add refund index", at)
	assert.Error(t, err, "existing files are not overwritten")

	_, err = Create(dir, "!!!", at)
	assert.Error(t, err)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "add_refund_index", slugify("Add-Refund__Index"))
	assert.Equal(t, "v2_orders", slugify("__v2 orders__"))
	assert.Empty(t, slugify("  "))
}

func TestNewRequiresInputs(t *testing.T) {
	_, err := New(nil, EmbeddedFS())
	assert.Error(t, err)
}

func readMigration(t *testing.T, slug string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+slug+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}
