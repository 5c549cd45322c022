// Package loader provides document loading adapters.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/0xcro3dile/ragchat/internal/adapters/parser"
	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// ErrUnsupported is returned for files no loader handles.
var ErrUnsupported = errors.New("unsupported file type")

// ParserLoader reads a file and runs it through a DocumentParser.
type ParserLoader struct {
	parser ports.DocumentParser
}

// NewParserLoader creates a loader backed by p.
func NewParserLoader(p ports.DocumentParser) *ParserLoader {
	return &ParserLoader{parser: p}
}

// Load reads a document from the given path.
func (l *ParserLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	parsed, err := l.parser.Parse(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	return &entities.Document{
		ID:        generateDocID(path),
		Name:      filepath.Base(path),
		Path:      path,
		Title:     parsed.Title,
		Source:    parsed.Source,
		Content:   parsed.Text,
		Metadata:  parsed.Metadata,
		CreatedAt: info.ModTime(),
		UpdatedAt: time.Now(),
	}, nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *ParserLoader) SupportedExtensions() []string {
	return l.parser.SupportedFormats()
}

// MultiLoader combines multiple loaders.
type MultiLoader struct {
	loaders map[string]ports.DocumentLoader
}

// NewMultiLoader creates a loader that handles multiple file types.
// Without arguments it handles .txt, .md, .markdown and .pdf.
func NewMultiLoader(loaders ...ports.DocumentLoader) *MultiLoader {
	if len(loaders) == 0 {
		loaders = []ports.DocumentLoader{
			NewParserLoader(parser.NewTextParser()),
			NewParserLoader(parser.NewMarkdownParser()),
			NewParserLoader(parser.NewPDFParser()),
		}
	}
	m := &MultiLoader{loaders: make(map[string]ports.DocumentLoader)}
	for _, l := range loaders {
		for _, ext := range l.SupportedExtensions() {
			m.loaders[strings.ToLower(ext)] = l
		}
	}
	return m
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
	return loader.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supports reports whether path has a handled extension.
func (m *MultiLoader) Supports(path string) bool {
	_, ok := m.loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Files lists supported files under dir in lexical order, skipping hidden entries.
func (m *MultiLoader) Files(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && m.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return files, nil
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
