package migrate

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

const versionDigits = 14

// Validate checks every .sql file in migrations for a well formed name, a
// unique version and balanced goose annotations.
func Validate(migrations fs.FS) error {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	versions := map[string]string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		version, err := fileVersion(name)
		if err != nil {
			return err
		}
		if prev, dup := versions[version]; dup {
			return fmt.Errorf("version %s used by both %s and %s", version, prev, name)
		}
		versions[version] = name

		body, err := fs.ReadFile(migrations, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := checkAnnotations(name, string(body)); err != nil {
			return err
		}
	}
	if len(versions) == 0 {
		return fmt.Errorf("no migrations found")
	}
	return nil
}

// fileVersion splits "<version>_<slug>.sql" and checks both halves.
func fileVersion(name string) (string, error) {
	stem := strings.TrimSuffix(name, ".sql")
	version, slug, ok := strings.Cut(stem, "_")
	if !ok || len(version) != versionDigits || !allDigits(version) || slug == "" || slugify(slug) != slug {
		return "", fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
	}
	return version, nil
}

func checkAnnotations(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("%s: missing -- +goose Up", name)
	case down < 0:
		return fmt.Errorf("%s: missing -- +goose Down", name)
	case down < up:
		return fmt.Errorf("%s: Down section precedes Up", name)
	}
	if strings.Count(body, "-- +goose StatementBegin") != strings.Count(body, "-- +goose StatementEnd") {
		return fmt.Errorf("%s: unbalanced StatementBegin/StatementEnd", name)
	}
	return nil
}
