// Package extract turns files into indexable text.
//
// Extraction is deliberately shallow: plain-text formats are read as-is,
// while rich formats (pdf, docx) are delegated to external tooling and
// currently yield placeholder text. The extractor owns no state and is
// safe for concurrent use.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Typed extraction failures. The Indexing Coordinator treats
// ErrUnsupportedType as a silent skip and ErrExtractionFailed as a
// counted per-file failure.
var (
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrExtractionFailed = errors.New("extraction failed")
)

// supportedTypes maps lowercase extensions (without dot) to extraction mode.
var supportedTypes = map[string]bool{
	"txt": true, "md": true, "html": true, "htm": true,
	"css": true, "js": true, "ts": true, "tsx": true, "jsx": true,
	"json": true, "yaml": true, "yml": true, "toml": true,
	"rs": true, "py": true, "c": true, "cpp": true, "h": true,
	"java": true, "go": true, "rb": true, "php": true, "sql": true,
	"pdf": true, "docx": true,
}

// richTypes need a format-specific decoder; their content is delegated.
var richTypes = map[string]bool{
	"pdf":  true,
	"docx": true,
}

// Extractor extracts text content from files on disk.
type Extractor struct {
	// MaxFileSize bounds how much the extractor will read. Zero means
	// no limit.
	MaxFileSize int64
}

// New creates an Extractor with the given size bound.
func New(maxFileSize int64) *Extractor {
	return &Extractor{MaxFileSize: maxFileSize}
}

// FileType returns the lowercase extension of path, without the dot.
func FileType(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return strings.ToLower(ext)
}

// Supported reports whether files with this extension can be indexed.
func Supported(fileType string) bool {
	return supportedTypes[strings.ToLower(fileType)]
}

// Extract reads and extracts text content from the file at path.
// Returns ErrUnsupportedType for extensions outside the supported set and
// ErrExtractionFailed (wrapped) for read or decode problems.
func (e *Extractor) Extract(path string) (string, error) {
	fileType := FileType(path)
	if !Supported(fileType) {
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedType, fileType)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrExtractionFailed, path, err)
	}
	if e.MaxFileSize > 0 && info.Size() > e.MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrExtractionFailed, path, e.MaxFileSize)
	}

	if richTypes[fileType] {
		// Format-specific decoding is an external collaborator.
		return fmt.Sprintf("[%s content: %s]", strings.ToUpper(fileType), filepath.Base(path)), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrExtractionFailed, path, err)
	}

	if isBinaryContent(content) {
		return "", fmt.Errorf("%w: %s contains binary data", ErrExtractionFailed, path)
	}

	return string(content), nil
}

// isBinaryContent checks the first 512 bytes for null bytes.
func isBinaryContent(content []byte) bool {
	checkLen := 512
	if len(content) < checkLen {
		checkLen = len(content)
	}

	for i := 0; i < checkLen; i++ {
		if content[i] == 0 {
			return true
		}
	}

	return false
}
