package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestParseSourceType(t *testing.T) {
	tests := []struct {
		in      string
		want    SourceType
		wantErr bool
	}{
		{"PARCEL", SourceParcel, false},
		{"parcel", SourceParcel, false},
		{"  Retr ", SourceRETR, false},
		{"DFI", SourceDFI, false},
		{"", "", true},
		{"SHAPEFILE", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSourceType(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSourceType(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSourceType(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSourceType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestForSource_UnknownType(t *testing.T) {
	if _, err := ForSource(SourceType("SHAPEFILE")); err == nil {
		t.Fatal("expected error for unknown source type")
	}
}

func TestRequired_OnlyParcelHasRequiredFields(t *testing.T) {
	parcel, _ := ForSource(SourceParcel)
	req := parcel.Required()
	if len(req) != 2 {
		t.Fatalf("expected 2 required PARCEL fields, got %v", req)
	}
	if req[0] != GeometryWKT || req[1] != GeometryType {
		t.Errorf("expected geometry fields, got %v", req)
	}

	for _, st := range []SourceType{SourceRETR, SourceDFI} {
		d, _ := ForSource(st)
		if got := d.Required(); len(got) != 0 {
			t.Errorf("%s: expected no required fields, got %v", st, got)
		}
	}
}

func TestValidateColumns_ParcelMissingGeometry(t *testing.T) {
	columns := []string{"STATEID", "PARCELID", "OWNERNME1"}
	_, _, err := ValidateColumns(columns, SourceParcel)
	if err == nil {
		t.Fatal("expected validation error when geometry columns are absent")
	}

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(verr.Missing) != 2 {
		t.Errorf("expected both geometry columns reported missing, got %v", verr.Missing)
	}
	if !strings.Contains(err.Error(), GeometryWKT) {
		t.Errorf("error should name the missing column: %v", err)
	}
}

func TestValidateColumns_ParcelCaseInsensitive(t *testing.T) {
	columns := []string{"stateid", "GEOMETRY_WKT", "Geometry_Type"}
	matched, total, err := ValidateColumns(columns, SourceParcel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched != 3 {
		t.Errorf("expected 3 matched columns, got %d", matched)
	}
	if total != len(parcelFields) {
		t.Errorf("expected total %d, got %d", len(parcelFields), total)
	}
}

func TestValidateColumns_RETRNeverFails(t *testing.T) {
	// RETR and DFI files vary between county exports; a low match ratio is
	// a diagnostic, not a rejection.
	matched, total, err := ValidateColumns([]string{"SOMETHING_ELSE"}, SourceRETR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matched != 0 {
		t.Errorf("expected 0 matched, got %d", matched)
	}
	if total != len(retrFields) {
		t.Errorf("expected total %d, got %d", len(retrFields), total)
	}
}

func TestBuildRecord_CoercionAndCanonicalNames(t *testing.T) {
	raw := map[string]string{
		"parcel_id":   "123-456",
		"SALE_AMOUNT": "185000.50",
		"NUM_PARCELS": "2",
		"GRANTOR":     "  SMITH FAMILY TRUST  ",
		"UNKNOWN_COL": "dropped",
	}

	rec, err := BuildRecord(SourceRETR, raw)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}

	if got := rec["PARCEL_ID"]; got != "123-456" {
		t.Errorf("PARCEL_ID = %v, want canonical-cased key with value 123-456", got)
	}
	if got, ok := rec["SALE_AMOUNT"].(float64); !ok || got != 185000.50 {
		t.Errorf("SALE_AMOUNT = %v, want float64 185000.50", rec["SALE_AMOUNT"])
	}
	if got, ok := rec["NUM_PARCELS"].(int64); !ok || got != 2 {
		t.Errorf("NUM_PARCELS = %v, want int64 2", rec["NUM_PARCELS"])
	}
	if got := rec["GRANTOR"]; got != "SMITH FAMILY TRUST" {
		t.Errorf("GRANTOR = %v, want trimmed value", got)
	}
	if _, ok := rec["UNKNOWN_COL"]; ok {
		t.Error("undeclared column should be dropped")
	}
}

func TestBuildRecord_EmptyValuesAbsent(t *testing.T) {
	raw := map[string]string{
		"ENTITY_ID":   "E100",
		"ENTITY_NAME": "",
		"AGENT_NAME":  "   ",
	}

	rec, err := BuildRecord(SourceDFI, raw)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	if len(rec) != 1 {
		t.Fatalf("expected only ENTITY_ID present, got %v", rec)
	}
	if _, ok := rec["ENTITY_NAME"]; ok {
		t.Error("empty value must be absent, not empty string")
	}
}

func TestBuildRecord_BadNumberInvalidatesRow(t *testing.T) {
	raw := map[string]string{
		"PARCEL_ID":   "123",
		"SALE_AMOUNT": "not-a-number",
	}
	if _, err := BuildRecord(SourceRETR, raw); err == nil {
		t.Fatal("expected error for unparseable numeric field")
	}

	raw = map[string]string{
		"PARCEL_ID":   "123",
		"NUM_PARCELS": "2.5",
	}
	if _, err := BuildRecord(SourceRETR, raw); err == nil {
		t.Fatal("expected error for non-integer NUM_PARCELS")
	}
}

func TestBuildRecord_ParcelRequiresGeometry(t *testing.T) {
	raw := map[string]string{
		"STATEID":      "55025-0001",
		GeometryWKT:    "POLYGON ((0 0, 1 0, 1 1, 0 0))",
		GeometryType:   "Polygon",
		"CNTASSDVALUE": "250000",
	}
	rec, err := BuildRecord(SourceParcel, raw)
	if err != nil {
		t.Fatalf("BuildRecord: %v", err)
	}
	if _, ok := rec[GeometryWKT]; !ok {
		t.Error("geometry_wkt missing from built record")
	}

	// Geometry present as a column but empty still fails the row.
	raw[GeometryWKT] = ""
	if _, err := BuildRecord(SourceParcel, raw); err == nil {
		t.Fatal("expected error when a required field is empty")
	}
}
