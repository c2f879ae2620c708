package migrate

import (
	"strings"
	"testing"
)

func TestGetAvailableMigrations(t *testing.T) {
	migrations, err := getAvailableMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(migrations) == 0 {
		t.Fatal("expected at least one migration, got none")
	}

	// Verify they're sorted by version
	for i := 1; i < len(migrations); i++ {
		if migrations[i].version <= migrations[i-1].version {
			t.Errorf("migrations not sorted: %d comes after %d",
				migrations[i].version, migrations[i-1].version)
		}
	}

	// Verify first migration is 001
	if migrations[0].version != 1 {
		t.Errorf("first migration version: got %d, want 1", migrations[0].version)
	}

	// Verify migrations have SQL content
	for _, m := range migrations {
		if m.sql == "" {
			t.Errorf("migration %d (%s) has empty SQL", m.version, m.name)
		}
	}
}

func TestMigrationFilesAreEmbedded(t *testing.T) {
	// Verify that the embed directive is working
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}

	if len(entries) == 0 {
		t.Fatal("no migration files embedded")
	}

	sqlCount := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			sqlCount++
		}
	}

	if sqlCount == 0 {
		t.Fatal("no SQL files found in embedded migrations")
	}

	t.Logf("found %d embedded migration files", sqlCount)
}

func TestInitialSchemaCoversCoreTables(t *testing.T) {
	migrations, err := getAvailableMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	initial := migrations[0]
	for _, table := range []string{
		"workspaces",
		"workspace_members",
		"pipelines",
		"pipeline_stages",
		"leads",
		"distribution_rules",
		"rule_members",
		"assignment_records",
	} {
		if !strings.Contains(initial.sql, table) {
			t.Errorf("initial schema missing table %s", table)
		}
	}
}
