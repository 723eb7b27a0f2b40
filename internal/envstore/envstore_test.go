package envstore

import "testing"

func TestSetEmptyKeyFails(t *testing.T) {
	s := New()
	if _, err := s.Set("", "v", ""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestMaskingSensitiveKeys(t *testing.T) {
	s := New()
	s.Set("ANTHROPIC_TOKEN", "sk-live-abc", "")
	s.Set("API_KEY", "abc123", "")
	s.Set("MY_SECRET", "shh", "")
	s.Set("PLAIN", "visible", "")
	s.Set("EMPTY_TOKEN", "", "")

	got := map[string]string{}
	for _, v := range s.List() {
		got[v.Key] = v.Value
	}
	if got["ANTHROPIC_TOKEN"] != maskedValue {
		t.Errorf("ANTHROPIC_TOKEN = %q, want masked", got["ANTHROPIC_TOKEN"])
	}
	if got["API_KEY"] != maskedValue {
		t.Errorf("API_KEY = %q, want masked", got["API_KEY"])
	}
	if got["MY_SECRET"] != maskedValue {
		t.Errorf("MY_SECRET = %q, want masked", got["MY_SECRET"])
	}
	if got["PLAIN"] != "visible" {
		t.Errorf("PLAIN = %q, want visible", got["PLAIN"])
	}
	if got["EMPTY_TOKEN"] != "" {
		t.Errorf("EMPTY_TOKEN = %q, want empty (not masked)", got["EMPTY_TOKEN"])
	}
}

func TestAsRecordUnmasked(t *testing.T) {
	s := New()
	s.Set("ANTHROPIC_TOKEN", "sk-live-abc", "")
	rec := s.AsRecord()
	if rec["ANTHROPIC_TOKEN"] != "sk-live-abc" {
		t.Errorf("AsRecord unmasked = %q", rec["ANTHROPIC_TOKEN"])
	}
}

func TestSetPreservesCreatedAt(t *testing.T) {
	s := New()
	first, _ := s.Set("K", "v1", "")
	second, err := s.Set("K", "v2", "")
	if err != nil {
		t.Fatal(err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v != %v", second.CreatedAt, first.CreatedAt)
	}
	if second.Value != "v2" {
		t.Errorf("Value = %q, want v2 (unmasked internal field)", second.Value)
	}
}

func TestDelete(t *testing.T) {
	s := New()
	s.Set("K", "v", "")
	if !s.Delete("K") {
		t.Error("expected Delete to report existing key")
	}
	if s.Delete("K") {
		t.Error("expected second Delete to report false")
	}
}

func TestListSortedByKey(t *testing.T) {
	s := New()
	s.Set("Z", "1", "")
	s.Set("A", "2", "")
	s.Set("M", "3", "")
	list := s.List()
	if len(list) != 3 || list[0].Key != "A" || list[1].Key != "M" || list[2].Key != "Z" {
		t.Errorf("List not sorted: %+v", list)
	}
}
