package app

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// maxFilenameRunes bounds derived filenames; long article titles are common.
const maxFilenameRunes = 50

// deriveOutputPath returns the explicit output path when given, else a
// filename derived from the article title.
func deriveOutputPath(explicit, title string) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	name := sanitizeFilename(title)
	if name == "" {
		name = "article"
	}
	return name + ".pdf"
}

// sanitizeFilename makes a title safe to use as a filename: compatibility
// normalization folds full-width punctuation the platform's titles often
// carry, characters illegal on common filesystems become underscores, and the
// result is truncated to a safe length.
func sanitizeFilename(title string) string {
	title = norm.NFKC.String(strings.TrimSpace(title))
	var b strings.Builder
	for _, r := range title {
		switch {
		case strings.ContainsRune(`\/*?:"<>|`, r), r < 0x20:
			b.WriteRune('_')
		case r == ' ':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	runes := []rune(b.String())
	if len(runes) > maxFilenameRunes {
		runes = runes[:maxFilenameRunes]
	}
	return strings.Trim(string(runes), "._")
}

// writeFileAtomic writes data through a temporary file in the target
// directory and renames it into place, so a failed write never leaves a
// partial output file at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
