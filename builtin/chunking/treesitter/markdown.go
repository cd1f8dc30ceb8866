package treesitter

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	tsmarkdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"

	"github.com/codechisel/codechisel/pkg/chunk"
	"github.com/codechisel/codechisel/pkg/types"
)

// chunkMarkdownFile partitions a markdown document by its headers. The
// grammar only locates headers and their levels; section sizing and
// sub-chunking stay with the engine.
func (c *Chunker) chunkMarkdownFile(f chunk.File, content []byte) ([]*types.CodeBlock, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(tsmarkdown.GetLanguage())
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	defer tree.Close()

	headers := collectHeaders(tree.RootNode(), f.Content)

	// Each section runs to the line before the next header of any level,
	// the last one to end of file.
	lineCount := strings.Count(f.Content, "\n") + 1
	for i := range headers {
		if i+1 < len(headers) {
			headers[i].EndLine = headers[i+1].StartLine - 1
		} else {
			headers[i].EndLine = lineCount
		}
	}
	return c.engine.ChunkMarkdown(f, headers), nil
}

// collectHeaders walks the markdown tree for ATX and setext headings in
// document order. EndLine is left for the caller to pair up.
func collectHeaders(root *sitter.Node, content string) []chunk.HeaderCapture {
	var headers []chunk.HeaderCapture
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "atx_heading", "setext_heading":
			headers = append(headers, chunk.HeaderCapture{
				CaptureName: fmt.Sprintf("definition.header.h%d", headingLevel(node, content)),
				Name:        headingText(node, content),
				StartLine:   int(node.StartPoint().Row) + 1,
			})
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	if root != nil {
		walk(root)
	}
	return headers
}

// headingLevel reads the level from the heading's marker child, falling
// back to counting leading # characters.
func headingLevel(node *sitter.Node, content string) int {
	for i := 0; i < int(node.ChildCount()); i++ {
		switch node.Child(i).Type() {
		case "atx_h1_marker", "setext_h1_underline":
			return 1
		case "atx_h2_marker", "setext_h2_underline":
			return 2
		case "atx_h3_marker":
			return 3
		case "atx_h4_marker":
			return 4
		case "atx_h5_marker":
			return 5
		case "atx_h6_marker":
			return 6
		}
	}
	text := content[node.StartByte():node.EndByte()]
	level := 0
	for level < len(text) && text[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 1
	}
	return level
}

// headingText extracts the display text of a heading, with markers
// stripped and long titles truncated.
func headingText(node *sitter.Node, content string) string {
	text := content[node.StartByte():node.EndByte()]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimLeft(text, "# ")
	text = strings.TrimRight(text, " \t\r#")
	if len(text) > 50 {
		text = text[:50] + "..."
	}
	return text
}
