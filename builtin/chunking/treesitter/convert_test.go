package treesitter

import (
	"context"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/codechisel/codechisel/pkg/chunk"
)

func parseGo(t *testing.T, src string) *chunk.Tree {
	t.Helper()
	parser := sitter.NewParser()
	parser.SetLanguage(getLanguage("go"))
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer tree.Close()
	return convertTree(tree.RootNode(), 0, 0)
}

func findNodeByType(t *chunk.Tree, typ string) chunk.NodeID {
	for id := chunk.NodeID(0); int(id) < t.Len(); id++ {
		if t.Node(id).Type == typ {
			return id
		}
	}
	return chunk.NoNode
}

func TestConvertTreeLayout(t *testing.T) {
	src := `package demo

func hello() {
	println("hi")
}
`
	at := parseGo(t, src)

	root := at.Root()
	if root == chunk.NoNode || at.Node(root).Type != "source_file" {
		t.Fatalf("root = %v, want a source_file node", root)
	}

	fn := findNodeByType(at, "function_declaration")
	if fn == chunk.NoNode {
		t.Fatal("function_declaration not found in arena")
	}
	n := at.Node(fn)
	if n.StartLine != 3 || n.EndLine != 5 {
		t.Errorf("function span = [%d,%d], want [3,5]", n.StartLine, n.EndLine)
	}
	if got := nodeText(at, fn, src); got != "func hello() {\n\tprintln(\"hi\")\n}" {
		t.Errorf("function text = %q", got)
	}
	if n.Parent != root {
		t.Errorf("function parent = %v, want root", n.Parent)
	}
	if len(n.Children) == 0 {
		t.Error("function node has no children")
	}
}

func TestAnnotateNamesGo(t *testing.T) {
	src := `package demo

func hello() {
	println("hi")
}

type Pair struct {
	A int
	B int
}
`
	at := parseGo(t, src)
	annotateNames(at, "go", src)

	fn := findNodeByType(at, "function_declaration")
	if name := at.Node(fn).Name; name != "hello" {
		t.Errorf("function name = %q, want hello", name)
	}
	td := findNodeByType(at, "type_declaration")
	if name := at.Node(td).Name; name != "Pair" {
		t.Errorf("type name = %q, want Pair", name)
	}
}

func TestCollectCapturesTopLevel(t *testing.T) {
	src := `package demo

func first() int {
	return 1
}

type Pair struct {
	A int
	B int
}

func second() int {
	return 2
}
`
	at := parseGo(t, src)
	captures := collectCaptures(at, "go", src)

	if len(captures) != 3 {
		t.Fatalf("got %d captures, want 3", len(captures))
	}
	wantTypes := []string{"function_declaration", "type_declaration", "function_declaration"}
	wantNames := []string{"definition.function", "definition.class", "definition.function"}
	for i, c := range captures {
		if got := at.Node(c.Node).Type; got != wantTypes[i] {
			t.Errorf("captures[%d] type = %q, want %q", i, got, wantTypes[i])
		}
		if c.Name != wantNames[i] {
			t.Errorf("captures[%d] name = %q, want %q", i, c.Name, wantNames[i])
		}
	}
}

func TestCaptureForElixirCalls(t *testing.T) {
	modContent := "defmodule Greeter do end"
	tr := chunk.NewTree(8)
	root := tr.AddNode(chunk.NoNode, chunk.Node{Type: "source", EndByte: len(modContent)})
	call := tr.AddNode(root, chunk.Node{Type: "call", EndByte: len(modContent)})
	tr.AddNode(call, chunk.Node{Type: "identifier", StartByte: 0, EndByte: 9})
	if got := captureFor(tr, call, "elixir", modContent); got != "definition.class" {
		t.Errorf("defmodule capture = %q, want definition.class", got)
	}

	defContent := "def hello do end"
	tr2 := chunk.NewTree(8)
	root2 := tr2.AddNode(chunk.NoNode, chunk.Node{Type: "source", EndByte: len(defContent)})
	call2 := tr2.AddNode(root2, chunk.Node{Type: "call", EndByte: len(defContent)})
	tr2.AddNode(call2, chunk.Node{Type: "identifier", StartByte: 0, EndByte: 3})
	args := tr2.AddNode(call2, chunk.Node{Type: "arguments", StartByte: 4, EndByte: 9})
	tr2.AddNode(args, chunk.Node{Type: "identifier", StartByte: 4, EndByte: 9})
	if got := captureFor(tr2, call2, "elixir", defContent); got != "definition.function" {
		t.Errorf("def capture = %q, want definition.function", got)
	}
	if got := elixirName(tr2, call2, "call", defContent); got != "hello" {
		t.Errorf("def name = %q, want hello", got)
	}

	plainContent := "puts something"
	tr3 := chunk.NewTree(4)
	root3 := tr3.AddNode(chunk.NoNode, chunk.Node{Type: "source", EndByte: len(plainContent)})
	call3 := tr3.AddNode(root3, chunk.Node{Type: "call", EndByte: len(plainContent)})
	tr3.AddNode(call3, chunk.Node{Type: "identifier", StartByte: 0, EndByte: 4})
	if got := captureFor(tr3, call3, "elixir", plainContent); got != "" {
		t.Errorf("plain call capture = %q, want empty", got)
	}
}

func TestFamilyFor(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"go", "go"},
		{"jsx", "javascript"},
		{"typescript", "javascript"},
		{"tsx", "javascript"},
		{"cc", "c"},
		{"hpp", "c"},
		{"rb", "ruby"},
		{"kt", "kotlin"},
		{"terraform", "hcl"},
		{"exs", "elixir"},
		{"gradle", "groovy"},
		{"swift", "swift"},
	}
	for _, tt := range tests {
		if got := familyFor(tt.language); got != tt.want {
			t.Errorf("familyFor(%q) = %q, want %q", tt.language, got, tt.want)
		}
	}
}

func TestTruncateName(t *testing.T) {
	short := "header .content"
	if got := truncateName(short); got != short {
		t.Errorf("short name changed: %q", got)
	}
	long := ""
	for len(long) <= 50 {
		long += "abcde"
	}
	got := truncateName(long)
	if len(got) != 53 {
		t.Errorf("truncated length = %d, want 53", len(got))
	}
}
