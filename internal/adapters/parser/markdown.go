package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v2"

	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// Metadata is the YAML front matter understood by the markdown parser.
type Metadata struct {
	Title  string
	Author string `yaml:"author"`
	Tags   []string
	Date   string
	Source string `yaml:"source"`
}

// MarkdownParser extracts readable text from markdown, honouring front matter.
type MarkdownParser struct {
	md goldmark.Markdown
}

// NewMarkdownParser creates a new markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{md: goldmark.New()}
}

// Parse strips front matter and flattens the document into paragraphs.
func (p *MarkdownParser) Parse(ctx context.Context, data []byte, filename string) (*ports.ParsedDocument, error) {
	front, body := splitFrontMatter(data)

	var meta Metadata
	if len(front) > 0 {
		if err := yaml.Unmarshal(front, &meta); err != nil {
			return nil, fmt.Errorf("parsing front matter of %s: %w", filename, err)
		}
	}

	blocks, heading := p.blocks(body)
	doc := &ports.ParsedDocument{
		Text:     strings.Join(blocks, "\n\n"),
		Title:    meta.Title,
		Source:   meta.Source,
		Metadata: map[string]string{},
	}
	if doc.Title == "" {
		doc.Title = heading
	}
	if meta.Author != "" {
		doc.Metadata["author"] = meta.Author
	}
	if meta.Date != "" {
		doc.Metadata["date"] = meta.Date
	}
	if len(meta.Tags) > 0 {
		doc.Metadata["tags"] = strings.Join(meta.Tags, ",")
	}
	return doc, nil
}

// SupportedFormats returns formats this parser handles.
func (p *MarkdownParser) SupportedFormats() []string {
	return []string{".md", ".markdown"}
}

// blocks walks the AST and returns the text of each block plus the first h1.
func (p *MarkdownParser) blocks(source []byte) ([]string, string) {
	doc := p.md.Parser().Parse(text.NewReader(source))

	var (
		blocks []string
		title  string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			if entering {
				cur.Reset()
				return ast.WalkContinue, nil
			}
			if h, ok := node.(*ast.Heading); ok && h.Level == 1 && title == "" {
				title = strings.TrimSpace(cur.String())
			}
			flush()
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				var code bytes.Buffer
				lines := node.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					code.Write(seg.Value(source))
				}
				cur.Reset()
				cur.Write(code.Bytes())
				flush()
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				cur.Write(node.Label(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return blocks, title
}

// splitFrontMatter separates a leading "---" YAML block from the body.
func splitFrontMatter(data []byte) (front, body []byte) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !bytes.HasPrefix(data, []byte("---\n")) && !bytes.HasPrefix(data, []byte("---\r\n")) {
		return nil, data
	}
	rest := data[bytes.IndexByte(data, '\n')+1:]
	for off := 0; off < len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		var line []byte
		if end < 0 {
			line = rest[off:]
		} else {
			line = rest[off : off+end]
		}
		if string(bytes.TrimRight(line, "\r \t")) == "---" {
			if end < 0 {
				return rest[:off], nil
			}
			return rest[:off], rest[off+end+1:]
		}
		if end < 0 {
			break
		}
		off += end + 1
	}
	return nil, data
}
