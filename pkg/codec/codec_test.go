package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]any{
		"zulu":  "last",
		"alpha": int64(1),
		"mike":  []any{"a", "b", int64(3)},
	}

	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for i := 0; i < 16; i++ {
		again, err := Marshal(v)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("repeated Marshal of the same map produced different bytes")
		}
	}
}

func TestRoundTripMapType(t *testing.T) {
	v := map[string]any{
		"name":   "eris",
		"nested": map[string]any{"occupation": "goddess"},
		"list":   []any{int64(1), int64(2)},
	}

	data, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("decoded top level is %T, want map[string]any", out)
	}
	nested, ok := m["nested"].(map[string]any)
	if !ok {
		t.Fatalf("decoded nested is %T, want map[string]any", m["nested"])
	}
	if nested["occupation"] != "goddess" {
		t.Errorf("nested value lost: %v", nested["occupation"])
	}
}

func TestIntegersDecodeSigned(t *testing.T) {
	data, err := Marshal(map[string]any{"pos": int64(7), "neg": int64(-7)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	m := out.(map[string]any)
	if v, ok := m["pos"].(int64); !ok || v != 7 {
		t.Errorf("pos decoded as %T %v, want int64 7", m["pos"], m["pos"])
	}
	if v, ok := m["neg"].(int64); !ok || v != -7 {
		t.Errorf("neg decoded as %T %v, want int64 -7", m["neg"], m["neg"])
	}
}

func TestUnregisteredTagSurfaces(t *testing.T) {
	data, err := Marshal(Tag{Number: 42, Content: []byte{0xAB, 0xCD}})
	if err != nil {
		t.Fatalf("Marshal tag: %v", err)
	}

	var out any
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal tag: %v", err)
	}

	tag, ok := out.(Tag)
	if !ok {
		t.Fatalf("decoded tag is %T, want codec.Tag", out)
	}
	if tag.Number != 42 {
		t.Errorf("tag number = %d, want 42", tag.Number)
	}
}
