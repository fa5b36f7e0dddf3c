package shared

import (
	"encoding/json"
	"testing"
)

func TestPatchFieldsKeepsEmptyMaps(t *testing.T) {
	fields, err := Patch{
		CheckedMap:  map[string]bool{},
		CommentsMap: map[string]string{},
		UpdatedAt:   1700000000000,
		UpdatedBy:   "codigo-secreto",
		Writer:      "w_1",
	}.Fields()
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	if string(fields[FieldCheckedMap]) != "{}" || string(fields[FieldCommentsMap]) != "{}" {
		t.Errorf("empty maps must be written, got %s / %s", fields[FieldCheckedMap], fields[FieldCommentsMap])
	}
	if string(fields[FieldUpdatedAt]) != "1700000000000" {
		t.Errorf("updatedAt = %s", fields[FieldUpdatedAt])
	}
	if string(fields[FieldUpdatedBy]) != `"codigo-secreto"` {
		t.Errorf("updatedBy = %s", fields[FieldUpdatedBy])
	}
	if doc := DecodeFields(fields); doc.Writer != "w_1" || doc.UpdatedBy != "codigo-secreto" {
		t.Errorf("writer should round trip, got %+v", doc)
	}
}

func TestPatchFieldsOmitsUnsetFields(t *testing.T) {
	fields, err := Patch{CheckedMap: map[string]bool{"1": true}}.Fields()
	if err != nil {
		t.Fatalf("Fields() error = %v", err)
	}
	if len(fields) != 1 {
		t.Fatalf("expected only checkedMap, got %v", fields)
	}
}

func TestDecodeFields(t *testing.T) {
	doc := DecodeFields(map[string]json.RawMessage{
		FieldCheckedMap:  json.RawMessage(`{"3.2":false,"9.1":true}`),
		FieldCommentsMap: json.RawMessage(`"not a map"`),
		FieldUpdatedAt:   json.RawMessage(`42`),
		"owner":          json.RawMessage(`"someone else"`),
	})
	if !doc.Exists {
		t.Error("expected Exists")
	}
	if len(doc.CheckedMap) != 2 || !doc.CheckedMap["9.1"] {
		t.Errorf("unexpected checked map: %v", doc.CheckedMap)
	}
	if doc.CommentsMap != nil {
		t.Errorf("malformed field should decode as absent, got %v", doc.CommentsMap)
	}
	if doc.UpdatedAt != 42 {
		t.Errorf("UpdatedAt = %d", doc.UpdatedAt)
	}
}

func TestDecodeEmptyDocument(t *testing.T) {
	doc := DecodeFields(nil)
	if doc.Exists || doc.CheckedMap != nil || doc.CommentsMap != nil {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}
