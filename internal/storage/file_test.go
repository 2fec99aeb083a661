package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "history")
	store := NewFileStore(dir)
	ctx := context.Background()
	account := "0xAbCdEf0000000000000000000000000000000001"

	if _, ok, err := store.Load(ctx, account); err != nil || ok {
		t.Fatalf("expected empty load, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, account, []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, ok, err := store.Load(ctx, "0xabcdef0000000000000000000000000000000001")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if string(data) != `[{"id":"a"}]` {
		t.Fatalf("unexpected data %s", data)
	}
	if _, err := os.Stat(filepath.Join(dir, "0xabcdef0000000000000000000000000000000001.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}

	if err := store.Delete(ctx, account); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Load(ctx, account); ok {
		t.Fatalf("expected data to be deleted")
	}
	if err := store.Delete(ctx, account); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	store := NewFileStore(t.TempDir())
	if err := store.Save(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected error for path traversal key")
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	buf := []byte("abc")
	if err := store.Save(ctx, "0xAA", buf); err != nil {
		t.Fatalf("save: %v", err)
	}
	buf[0] = 'z'
	data, ok, _ := store.Load(ctx, "0xaa")
	if !ok || string(data) != "abc" {
		t.Fatalf("unexpected load %q ok=%v", data, ok)
	}
}
