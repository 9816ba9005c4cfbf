package logfields

import (
	"errors"
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r1", RunID("r1")},
		{"Taxonomy", KeyTaxonomy, "labels", Taxonomy("labels")},
		{"URL", KeyURL, "https://x", URL("https://x")},
		{"ScheduleID", KeyScheduleID, "sch1", ScheduleID("sch1")},
		{"Barcode", KeyBarcode, "3017620422003", Barcode("3017620422003")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
	}
	for _, c := range cases {
		if c.attr.Key != c.attrKey {
			t.Errorf("%s: key = %q, want %q", c.name, c.attr.Key, c.attrKey)
		}
		if c.attr.Value.String() != c.attrVal {
			t.Errorf("%s: value = %q, want %q", c.name, c.attr.Value.String(), c.attrVal)
		}
	}
}

func TestNumericHelpers(t *testing.T) {
	if a := Items(12); a.Key != KeyItems || a.Value.Int64() != 12 {
		t.Errorf("Items attr = %v", a)
	}
	if a := SinceMS(1700000000000); a.Key != KeySinceMS || a.Value.Int64() != 1700000000000 {
		t.Errorf("SinceMS attr = %v", a)
	}
	if a := Status(503); a.Key != KeyStatus || a.Value.Int64() != 503 {
		t.Errorf("Status attr = %v", a)
	}
}

func TestErrorHelper(t *testing.T) {
	if a := Error(nil); a.Value.String() != "" {
		t.Errorf("nil error should render empty, got %q", a.Value.String())
	}
	if a := Error(errors.New("boom")); a.Key != KeyError || a.Value.String() != "boom" {
		t.Errorf("Error attr = %v", a)
	}
}
