package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDeriveOutputPath_ExplicitWins(t *testing.T) {
	if got := deriveOutputPath("custom.pdf", "A Title"); got != "custom.pdf" {
		t.Fatalf("explicit path should win, got %q", got)
	}
}

func TestDeriveOutputPath_FromTitle(t *testing.T) {
	if got := deriveOutputPath("", "A Nice Title"); got != "A_Nice_Title.pdf" {
		t.Fatalf("unexpected derived path %q", got)
	}
}

func TestDeriveOutputPath_EmptyTitleFallback(t *testing.T) {
	if got := deriveOutputPath("", "   "); got != "article.pdf" {
		t.Fatalf("expected generic fallback, got %q", got)
	}
}

func TestSanitizeFilename_StripsIllegalCharacters(t *testing.T) {
	got := sanitizeFilename(`Some: Title/With*Illegal|"Chars?"`)
	if strings.ContainsAny(got, `\/*?:"<>| `) {
		t.Fatalf("illegal characters survived: %q", got)
	}
	if got != "Some__Title_With_Illegal__Chars" {
		t.Fatalf("unexpected sanitized name: %q", got)
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := strings.Repeat("标题", 60)
	got := sanitizeFilename(long)
	if n := len([]rune(got)); n > maxFilenameRunes {
		t.Fatalf("expected at most %d runes, got %d", maxFilenameRunes, n)
	}
}

func TestSanitizeFilename_NormalizesFullWidth(t *testing.T) {
	// Full-width colon folds to ASCII under NFKC and is then replaced.
	got := sanitizeFilename("标题：副标题")
	if strings.Contains(got, ":") || strings.Contains(got, "：") {
		t.Fatalf("colon variant survived: %q", got)
	}
}

func TestWriteFileAtomic_WritesAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	data := []byte("%PDF-stub")

	if err := writeFileAtomic(path, data); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("content mismatch: %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, found %d entries", len(entries))
	}
}

func TestWriteFileAtomic_FailureLeavesNoPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.pdf")

	if err := writeFileAtomic(path, []byte("data")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("no file may exist at the target after a failed write, stat: %v", err)
	}
}

func TestWriteFileAtomic_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pdf")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := writeFileAtomic(path, []byte("new")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("expected replacement content, got %q", got)
	}
}
