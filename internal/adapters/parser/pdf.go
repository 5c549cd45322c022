// Package parser provides document parsing adapters.
// Clean Architecture: Adapters implementing ports.DocumentParser.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// PDFParser extracts plain text from PDF documents.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// Parse extracts the text of every page and the document title, if any.
// The pdf reader panics on some malformed files; that is reported as an error.
func (p *PDFParser) Parse(ctx context.Context, data []byte, filename string) (doc *ports.ParsedDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parsing pdf %s: %v", filename, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening pdf %s: %w", filename, err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting text from %s: %w", filename, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, fmt.Errorf("reading text from %s: %w", filename, err)
	}

	text := cleanText(buf.String())
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", filename)
	}

	doc = &ports.ParsedDocument{
		Text:     text,
		Metadata: map[string]string{"pages": fmt.Sprint(r.NumPage())},
	}
	info := r.Trailer().Key("Info")
	if title := strings.TrimSpace(info.Key("Title").Text()); title != "" {
		doc.Title = title
	}
	if author := strings.TrimSpace(info.Key("Author").Text()); author != "" {
		doc.Metadata["author"] = author
	}
	return doc, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PDFParser) SupportedFormats() []string {
	return []string{".pdf"}
}

// cleanText drops control characters and collapses blank-line runs.
func cleanText(s string) string {
	var b strings.Builder
	newlines := 0
	for _, r := range s {
		switch {
		case r == '\n':
			newlines++
			if newlines <= 2 {
				b.WriteRune(r)
			}
			continue
		case r == '\t':
			b.WriteRune(' ')
		case r < 32 || r == 0xFFFD:
			continue
		default:
			b.WriteRune(r)
		}
		newlines = 0
	}
	return strings.TrimSpace(b.String())
}
