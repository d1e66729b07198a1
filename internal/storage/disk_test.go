package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskStore_UploadDownloadDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	path, err := store.Upload(ctx, "u1/g1/contract_1.docx", []byte("binary"), "application/octet-stream")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if path != "u1/g1/contract_1.docx" {
		t.Errorf("got path %q", path)
	}

	data, err := store.Download(ctx, path)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "binary" {
		t.Errorf("got %q", data)
	}

	if err := store.Delete(ctx, path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Download(ctx, path); err == nil {
		t.Error("expected error after delete")
	}
	// Deleting again is not an error.
	if err := store.Delete(ctx, path); err != nil {
		t.Errorf("repeat delete: %v", err)
	}
}

func TestDiskStore_DeletePrefix(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	_, _ = store.Upload(ctx, "u1/g1/a.docx", []byte("a"), "")
	_, _ = store.Upload(ctx, "u1/g1/b.pdf", []byte("b"), "")
	_, _ = store.Upload(ctx, "u1/g2/c.docx", []byte("c"), "")

	if err := store.DeletePrefix(ctx, "u1/g1"); err != nil {
		t.Fatalf("DeletePrefix: %v", err)
	}
	if _, err := store.Download(ctx, "u1/g1/a.docx"); err == nil {
		t.Error("expected g1 artifacts gone")
	}
	if _, err := store.Download(ctx, "u1/g2/c.docx"); err != nil {
		t.Errorf("g2 artifacts should survive: %v", err)
	}
}

func TestDiskStore_rejectsEscape(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := store.Upload(ctx, "../outside.txt", []byte("x"), ""); err == nil {
		if _, statErr := os.Stat(filepath.Join(filepath.Dir(root), "outside.txt")); statErr == nil {
			t.Fatal("path escaped the store root")
		}
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.bin"), make([]byte, 100), 0600); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	_ = os.MkdirAll(sub, 0755)
	if err := os.WriteFile(filepath.Join(sub, "b.bin"), make([]byte, 50), 0600); err != nil {
		t.Fatal(err)
	}

	n, err := DiskUsageBytes(dir, filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 150 {
		t.Errorf("expected 150 bytes, got %d", n)
	}
}
