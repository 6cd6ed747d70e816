package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, value := range []string{"pending", "shipped"} {
		status, err := ParseOrderStatus(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if status.String() != value || !status.IsValid() {
			t.Fatalf("round trip failed for %q: got %q", value, status)
		}
	}

	if _, err := ParseOrderStatus("delivered"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if OrderStatus("delivered").IsValid() {
		t.Fatal("unknown status must not validate")
	}
}
