package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	pgDup := &pgconn.PgError{Code: "23505", ConstraintName: "inventory_items_product_id_key"}

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil error", nil, "", false},
		{"pg unique violation", pgDup, "", true},
		{"pg unique violation matching constraint", pgDup, "product_id", true},
		{"pg unique violation other constraint", pgDup, "orders_pkey", false},
		{"pg foreign key violation", &pgconn.PgError{Code: "23503"}, "", false},
		{"wrapped pg error", fmt.Errorf("create inventory row: %w", pgDup), "product_id", true},
		{"sqlite message", errors.New("UNIQUE constraint failed: inventory_items.product_id"), "product_id", true},
		{"postgres message fallback", errors.New(`duplicate key value violates unique constraint "inventory_items_product_id_key"`), "", true},
		{"unrelated error", errors.New("connection refused"), "", false},
	}

	for _, tt := range tests {
		if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
			t.Fatalf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
