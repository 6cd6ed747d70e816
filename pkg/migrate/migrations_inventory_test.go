package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInventoryMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_inventory_items.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no inventory migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_items",
		"FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE",
		"UNIQUE (product_id)",
		"CHECK (quantity >= 0)",
		"DROP TABLE IF EXISTS inventory_items",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOrderLinesMigrationOmitsProductFK(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_order_lines.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no order_lines migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE") {
		t.Errorf("order_lines must cascade-delete with the parent order")
	}
	// product_id is a value snapshot; deleting a product must not touch lines
	if strings.Contains(content, "REFERENCES products(id)") {
		t.Errorf("order_lines.product_id must not carry a foreign key")
	}
}

func TestMigrationDirValidates(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) < 4 {
		t.Fatalf("expected at least 4 migrations, found %d", len(matches))
	}
}
