package dump

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestEncode(t *testing.T) {
	values := []uint64{4, 25, 81}

	if got := string(Encode(values, FormatConcat)); got != "42581" {
		t.Errorf("concat = %q, want %q", got, "42581")
	}
	if got := string(Encode(values, FormatLines)); got != "4\n25\n81\n" {
		t.Errorf("lines = %q", got)
	}
	if got := Encode(nil, FormatConcat); len(got) != 0 {
		t.Errorf("empty encode = %q", got)
	}

	back, err := DecodeLines(Encode(values, FormatLines))
	if err != nil {
		t.Fatalf("DecodeLines: %v", err)
	}
	if !slices.Equal(back, values) {
		t.Errorf("DecodeLines = %v, want %v", back, values)
	}
	if _, err := DecodeLines([]byte("12\nx\n")); err == nil {
		t.Error("DecodeLines should reject non-numeric lines")
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatConcat, "concat": FormatConcat, "Lines": FormatLines} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for csv")
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("42581"))
	if len(a) != 64 {
		t.Fatalf("checksum length = %d, want 64", len(a))
	}
	if a != Checksum([]byte("42581")) || a == Checksum([]byte("4258")) {
		t.Error("checksum not deterministic or not content-sensitive")
	}
}

func TestFileStoreReplaces(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "dumps"), FormatConcat)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Put(ctx, Block{ConnID: 3, Values: []uint64{4, 25, 81}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, Block{ConnID: 3, Values: []uint64{9}}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	path := store.Path(3)
	if filepath.Base(path) != "3.dmp" {
		t.Errorf("Path = %s, want 3.dmp", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "9" {
		t.Errorf("file content = %q, want %q", data, "9")
	}

	store.Close()
	if err := store.Put(ctx, Block{ConnID: 4}); err != ErrStoreClosed {
		t.Errorf("Put after Close = %v, want ErrStoreClosed", err)
	}
}

func TestFileStoreLinesFormat(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), FormatLines)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := store.Put(context.Background(), Block{ConnID: 1, Values: []uint64{1, 4}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, _ := os.ReadFile(store.Path(1))
	if string(data) != "1\n4\n" {
		t.Errorf("content = %q", data)
	}
}
