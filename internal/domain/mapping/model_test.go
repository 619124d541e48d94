package mapping

import (
	"encoding/json"
	"testing"
)

func TestSourceRank(t *testing.T) {
	if SourceManual.Rank() <= SourceAI.Rank() {
		t.Error("manual must outrank ai")
	}
	if SourceAI.Rank() <= SourceOCR.Rank() {
		t.Error("ai must outrank ocr")
	}
	if Source("bogus").Rank() != 0 {
		t.Error("unknown source must rank lowest")
	}
}

func TestMappingEntry_UnmarshalLegacyString(t *testing.T) {
	var e MappingEntry
	if err := json.Unmarshal([]byte(`"patient_name"`), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.IsLegacy() {
		t.Error("expected legacy entry")
	}
	m := e.Normalize()
	if m.SystemFieldName != "patient_name" {
		t.Errorf("expected original string preserved, got %q", m.SystemFieldName)
	}
	if m.Source != SourceManual {
		t.Errorf("expected manual source, got %s", m.Source)
	}
	if m.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", m.Confidence)
	}
}

func TestMappingEntry_UnmarshalStructured(t *testing.T) {
	var e MappingEntry
	raw := `{"external_field_name":"Physician NPI","system_field_name":"provider_npi","source":"ai","confidence":0.9}`
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.IsLegacy() {
		t.Error("expected structured entry")
	}
	m := e.Normalize()
	if m.SystemFieldName != "provider_npi" || m.Source != SourceAI || m.Confidence != 0.9 {
		t.Errorf("unexpected normalized mapping: %+v", m)
	}
}

func TestMappingEntry_UnmarshalGarbage(t *testing.T) {
	var e MappingEntry
	if err := json.Unmarshal([]byte(`42`), &e); err == nil {
		t.Fatal("expected error for non-string non-object entry")
	}
}

func TestMappingEntry_MarshalRoundTrip(t *testing.T) {
	out, err := json.Marshal(LegacyEntry("patient_dob"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `"patient_dob"` {
		t.Errorf("legacy entry must marshal back to a bare string, got %s", out)
	}
}
