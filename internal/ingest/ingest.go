package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/statements-tracker/constants"
)

// File is a statement read from disk.
type File struct {
	Path    string // absolute
	Name    string
	Ext     string
	HashHex string
	Data    []byte
}

// FileResult is the per-file outcome of a directory scan.
type FileResult struct {
	Path string
	Err  string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned uint32
	Matched uint32
	Failed  uint32
}

// ReadFile loads path and hashes its content. Only allowed extensions are read.
func ReadFile(path string) (File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return File{}, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if !statementExt(ext) {
		return File{}, fmt.Errorf("unsupported or missing extension: %q", ext)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return File{}, fmt.Errorf("read: %w", err)
	}
	return File{
		Path:    abs,
		Name:    filepath.Base(abs),
		Ext:     ext,
		HashHex: Hash(data),
		Data:    data,
	}, nil
}

// Hash is the content hash used to deduplicate uploads.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// statementExt reports whether the decoder takes files with this extension.
func statementExt(ext string) bool {
	_, ok := constants.AllowedExtensions[constants.NormalizeExt(ext)]
	return ok
}

// hidden matches dot files and dot directories, which scans and watches skip.
func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
