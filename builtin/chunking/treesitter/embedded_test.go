package treesitter

import (
	"testing"

	"github.com/codechisel/codechisel/pkg/types"
)

func TestChunkEmbeddedHTMLScript(t *testing.T) {
	src := `<html>
<body>
<script>
function greet(name) {
  console.log("hello there, " + name + "!");
}
</script>
</body>
</html>`

	c := New(Config{})
	file := &types.SourceFile{Path: "page.html", Content: []byte(src), Language: "html"}
	blocks, err := c.Chunk(file)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}

	b := blocks[0]
	if b.Type != "function_declaration" {
		t.Errorf("Type = %q, want function_declaration", b.Type)
	}
	if b.Identifier != "greet" {
		t.Errorf("Identifier = %q, want greet", b.Identifier)
	}
	if b.StartLine != 4 || b.EndLine != 6 {
		t.Errorf("span = [%d,%d], want [4,6]", b.StartLine, b.EndLine)
	}
	if b.Language != "javascript" {
		t.Errorf("Language = %q, want javascript", b.Language)
	}
	if b.FilePath != "page.html" {
		t.Errorf("FilePath = %q, want page.html", b.FilePath)
	}
}

func TestChunkEmbeddedSvelteScript(t *testing.T) {
	src := `<script>
export function double(value) {
  return value * 2 + value - value;
}
</script>

<p>{count}</p>`

	c := New(Config{})
	file := &types.SourceFile{Path: "counter.svelte", Content: []byte(src), Language: "svelte"}
	blocks, err := c.Chunk(file)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}

	b := blocks[0]
	if b.Type != "function_declaration" {
		t.Errorf("Type = %q, want function_declaration", b.Type)
	}
	if b.Identifier != "double" {
		t.Errorf("Identifier = %q, want double", b.Identifier)
	}
	if b.StartLine != 2 || b.EndLine != 4 {
		t.Errorf("span = [%d,%d], want [2,4]", b.StartLine, b.EndLine)
	}
	if b.Language != "javascript" {
		t.Errorf("Language = %q, want javascript", b.Language)
	}
}

func TestChunkHTMLWithoutScripts(t *testing.T) {
	src := `<html>
<body>
<p>This page has no scripts anywhere in it.</p>
</body>
</html>`

	c := New(Config{})
	file := &types.SourceFile{Path: "static.html", Content: []byte(src), Language: "html"}
	blocks, err := c.Chunk(file)
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0].Type != "fallback_chunk" {
		t.Errorf("Type = %q, want fallback_chunk", blocks[0].Type)
	}
	if blocks[0].Language != "html" {
		t.Errorf("Language = %q, want html", blocks[0].Language)
	}
}

func TestIsEmbeddedJSLanguage(t *testing.T) {
	tests := []struct {
		language string
		want     bool
	}{
		{"html", true},
		{"htm", true},
		{"xhtml", true},
		{"svelte", true},
		{"php", false},
		{"go", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isEmbeddedJSLanguage(tt.language); got != tt.want {
			t.Errorf("isEmbeddedJSLanguage(%q) = %v, want %v", tt.language, got, tt.want)
		}
	}
}
