package migrate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateDir_PassesOnRepoMigrations(t *testing.T) {
	if err := ValidateDir("migrations"); err != nil {
		t.Fatalf("expected repo migrations to validate, got %v", err)
	}
}

func TestValidateDir_RejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "not_a_migration.sql")
	if err := os.WriteFile(bad, []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected error for invalid filename")
	}
}

func TestValidateDir_RejectsMissingGooseMarkers(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "20260101120000_missing_markers.sql")
	if err := os.WriteFile(bad, []byte("CREATE TABLE x (id INT);"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatalf("expected error for missing goose markers")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Delivery Receipts!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	base := filepath.Base(path)
	if !sqlFileRe.MatchString(base) {
		t.Fatalf("created filename %q does not match migration pattern", base)
	}
}
