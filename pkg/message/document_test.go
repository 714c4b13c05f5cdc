package message

import (
	"encoding/json"
	"testing"
)

func TestDigNestedLookup(t *testing.T) {
	doc := Document{
		"conversation": map[string]any{
			"meta": map[string]any{
				"sender": map[string]any{"phone_number": "+79991234567"},
			},
		},
	}

	value, ok := doc.Dig("conversation", "meta", "sender", "phone_number")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if value != "+79991234567" {
		t.Fatalf("value = %v, want +79991234567", value)
	}
}

func TestDigMissingKeyAtAnyDepth(t *testing.T) {
	doc := Document{"a": map[string]any{"b": map[string]any{}}}

	if _, ok := doc.Dig("a", "b", "c"); ok {
		t.Fatal("expected missing leaf to be absent")
	}
	if _, ok := doc.Dig("a", "x", "c"); ok {
		t.Fatal("expected missing middle key to be absent")
	}
	if _, ok := doc.Dig("x"); ok {
		t.Fatal("expected missing top key to be absent")
	}
}

func TestDigWrongTypeNode(t *testing.T) {
	doc := Document{"a": "scalar", "b": map[string]any{"c": nil}}

	if _, ok := doc.Dig("a", "b"); ok {
		t.Fatal("expected traversal through scalar to be absent")
	}
	if _, ok := doc.Dig("b", "c", "d"); ok {
		t.Fatal("expected traversal through nil to be absent")
	}
}

func TestDigOnNilDocument(t *testing.T) {
	var doc Document

	if _, ok := doc.Dig("anything"); ok {
		t.Fatal("expected nil document lookup to be absent")
	}
	if got := doc.DigString("anything"); got != "" {
		t.Fatalf("DigString on nil document = %q, want empty", got)
	}
}

func TestDigStringTrimsAndRejectsNonStrings(t *testing.T) {
	doc := Document{"name": "  bob  ", "count": float64(3), "flag": true}

	if got := doc.DigString("name"); got != "bob" {
		t.Fatalf("DigString = %q, want %q", got, "bob")
	}
	if got := doc.DigString("count"); got != "" {
		t.Fatalf("DigString on number = %q, want empty", got)
	}
	if got := doc.DigString("flag"); got != "" {
		t.Fatalf("DigString on bool = %q, want empty", got)
	}
}

func TestDigStringableNumbers(t *testing.T) {
	doc := Document{
		"float_id":  float64(987654321),
		"zero":      float64(0),
		"int_id":    42,
		"number":    json.Number("123456789012"),
		"as_string": " 77 ",
	}

	if got := doc.DigStringable("float_id"); got != "987654321" {
		t.Fatalf("float id = %q, want 987654321", got)
	}
	// Zero is present: presence is string non-emptiness, not truthiness.
	if got := doc.DigStringable("zero"); got != "0" {
		t.Fatalf("zero = %q, want 0", got)
	}
	if got := doc.DigStringable("int_id"); got != "42" {
		t.Fatalf("int id = %q, want 42", got)
	}
	if got := doc.DigStringable("number"); got != "123456789012" {
		t.Fatalf("json number = %q, want 123456789012", got)
	}
	if got := doc.DigStringable("as_string"); got != "77" {
		t.Fatalf("string = %q, want 77", got)
	}
	if got := doc.DigStringable("missing"); got != "" {
		t.Fatalf("missing = %q, want empty", got)
	}
}

func TestDigDocument(t *testing.T) {
	doc := Document{"sender": map[string]any{"id": "1"}, "scalar": "x"}

	sender := doc.DigDocument("sender")
	if sender == nil {
		t.Fatal("expected nested document")
	}
	if got := sender.DigString("id"); got != "1" {
		t.Fatalf("id = %q, want 1", got)
	}

	if doc.DigDocument("scalar") != nil {
		t.Fatal("expected nil for scalar node")
	}
	if doc.DigDocument("missing") != nil {
		t.Fatal("expected nil for missing node")
	}
}
