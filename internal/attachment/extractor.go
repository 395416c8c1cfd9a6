// Package attachment turns attached files into text that is folded into a
// user message.
package attachment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"
	"github.com/gabriel-vasile/mimetype"
)

// MaxFileBytes bounds how much of a file is read
const MaxFileBytes = 10 * 1024 * 1024

// Kind classifies an extraction failure
type Kind string

const (
	KindUnsupported Kind = "unsupported_type"
	KindCorrupt     Kind = "corrupt_content"
	KindEmpty       Kind = "empty_result"
)

// ExtractionError reports why one file produced no text
type ExtractionError struct {
	Kind Kind
	File string
	Err  error
}

func (e *ExtractionError) Error() string {
	var reason string
	switch e.Kind {
	case KindUnsupported:
		reason = "file type not supported"
	case KindCorrupt:
		reason = "file content is corrupt"
	case KindEmpty:
		reason = "no text found"
	default:
		reason = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", reason, e.Err)
	}
	return reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// File is an attachment held in memory
type File struct {
	Name string
	Data []byte
}

// Open reads the file at path
func Open(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "open attachment %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return File{}, errors.Wrapf(err, "stat attachment %s", path)
	}
	if info.IsDir() {
		return File{}, errors.Errorf("attachment %s is a directory", path)
	}
	if info.Size() > MaxFileBytes {
		return File{}, errors.Errorf("attachment %s is larger than %d bytes", path, MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, errors.Wrapf(err, "read attachment %s", path)
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// Extractor produces the text of a file or an *ExtractionError
type Extractor interface {
	Extract(ctx context.Context, f File) (string, error)
}

// textExtensions are read as text even when content sniffing is inconclusive
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".json": true, ".csv": true,
	".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".py": true, ".go": true, ".yaml": true, ".yml": true,
}

// TextExtractor extracts plain text, code and other text-like files
type TextExtractor struct{}

// NewTextExtractor creates a TextExtractor
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract returns the text content of f
func (x *TextExtractor) Extract(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !isText(f) {
		mt := mimetype.Detect(f.Data)
		return "", &ExtractionError{Kind: KindUnsupported, File: f.Name, Err: errors.Errorf("detected %s", mt.String())}
	}
	if !utf8.Valid(f.Data) {
		return "", &ExtractionError{Kind: KindCorrupt, File: f.Name, Err: errors.New("invalid UTF-8")}
	}

	text := strings.TrimSpace(string(f.Data))
	if text == "" {
		return "", &ExtractionError{Kind: KindEmpty, File: f.Name}
	}
	return text, nil
}

func isText(f File) bool {
	if textExtensions[strings.ToLower(filepath.Ext(f.Name))] {
		return true
	}
	for mt := mimetype.Detect(f.Data); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") || strings.HasPrefix(mt.String(), "text/") {
			return true
		}
	}
	return false
}
