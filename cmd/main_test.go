package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pdf-rag/internal/models"
)

func TestSplitIDs(t *testing.T) {
	if got := splitIDs(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
	if got := splitIDs(" a, ,b ,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
}

func TestLoadHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	data := `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := loadHistory(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []models.ConversationTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if turns, err := loadHistory(""); err != nil || turns != nil {
		t.Fatalf("expected no history, got %v %v", turns, err)
	}
	if _, err := loadHistory(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
