package parser

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// TextParser passes plain text through.
type TextParser struct{}

// NewTextParser creates a new plain text parser.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse validates the encoding and returns the text unchanged.
func (p *TextParser) Parse(ctx context.Context, data []byte, filename string) (*ports.ParsedDocument, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s is not valid UTF-8", filename)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return &ports.ParsedDocument{Text: text, Metadata: map[string]string{}}, nil
}

// SupportedFormats returns formats this parser handles.
func (p *TextParser) SupportedFormats() []string {
	return []string{".txt"}
}
