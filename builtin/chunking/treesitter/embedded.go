package treesitter

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/codechisel/codechisel/pkg/chunk"
	"github.com/codechisel/codechisel/pkg/types"
)

// isEmbeddedJSLanguage reports whether files of this language carry their
// logic in embedded <script> elements.
func isEmbeddedJSLanguage(language string) bool {
	switch language {
	case "html", "htm", "xhtml", "svelte":
		return true
	}
	return false
}

// chunkEmbedded parses the host document, locates script bodies, parses
// each body as JavaScript, and merges the subtrees into one arena
// positioned against the host file. Returns no blocks when the document
// holds no scripts, so the caller can fall back to the host grammar.
func (c *Chunker) chunkEmbedded(f chunk.File, content []byte) ([]*types.CodeBlock, error) {
	hostLang := getLanguage(f.Language)
	if hostLang == nil {
		return nil, fmt.Errorf("language %s not supported by tree-sitter", f.Language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(hostLang)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.Path, err)
	}
	defer tree.Close()

	scripts := findScripts(tree.RootNode(), f.Content)
	if len(scripts) == 0 {
		return nil, nil
	}

	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	defer jsParser.Close()

	at := chunk.NewTree(64)
	rootID := at.AddNode(chunk.NoNode, chunk.Node{
		Type:      "document",
		StartLine: 1,
		EndLine:   strings.Count(f.Content, "\n") + 1,
		StartByte: 0,
		EndByte:   len(f.Content),
	})

	for _, s := range scripts {
		body := content[s.StartByte():s.EndByte()]
		jsTree, err := jsParser.ParseCtx(context.Background(), nil, body)
		if err != nil {
			continue
		}
		if jsRoot := jsTree.RootNode(); jsRoot != nil {
			// Script bodies are contiguous slices of the host file, so
			// shifting by the body's position keeps lines and bytes exact.
			addSubtree(at, rootID, jsRoot, int(s.StartPoint().Row), int(s.StartByte()))
		}
		jsTree.Close()
	}

	annotateNames(at, "javascript", f.Content)
	captures := collectCaptures(at, "javascript", f.Content)
	if len(captures) == 0 {
		return nil, nil
	}
	// Blocks cut from scripts are JavaScript regardless of the host file.
	f.Language = "javascript"
	return c.engine.ChunkCode(f, at, captures), nil
}

// findScripts returns the raw_text bodies of the document's script
// elements, skipping empty ones.
func findScripts(root *sitter.Node, content string) []*sitter.Node {
	var scripts []*sitter.Node
	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		if node.Type() == "script_element" {
			for i := 0; i < int(node.ChildCount()); i++ {
				child := node.Child(i)
				if child.Type() != "raw_text" {
					continue
				}
				body := content[child.StartByte():child.EndByte()]
				if strings.TrimSpace(body) != "" {
					scripts = append(scripts, child)
				}
			}
			return
		}
		for i := 0; i < int(node.ChildCount()); i++ {
			walk(node.Child(i))
		}
	}
	if root != nil {
		walk(root)
	}
	return scripts
}
