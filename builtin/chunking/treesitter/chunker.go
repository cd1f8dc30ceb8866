// Package treesitter implements syntax-aware chunking on top of Tree-sitter
// grammars. It parses a source file, converts the syntax tree into the
// engine's arena form, seeds the engine with the file's definition nodes,
// and lets pkg/chunk make every size and split decision.
package treesitter

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	tsc "github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/cue"
	"github.com/smacker/go-tree-sitter/dockerfile"
	"github.com/smacker/go-tree-sitter/elixir"
	"github.com/smacker/go-tree-sitter/elm"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/groovy"
	"github.com/smacker/go-tree-sitter/hcl"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/lua"
	tsmarkdown "github.com/smacker/go-tree-sitter/markdown/tree-sitter-markdown"
	"github.com/smacker/go-tree-sitter/ocaml"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/protobuf"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/scala"
	"github.com/smacker/go-tree-sitter/sql"
	"github.com/smacker/go-tree-sitter/svelte"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/toml"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	tstype "github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"

	"github.com/codechisel/codechisel/pkg/chunk"
	"github.com/codechisel/codechisel/pkg/provider"
	"github.com/codechisel/codechisel/pkg/types"
)

// Config contains configuration for tree-sitter chunking.
type Config struct {
	Limits   chunk.Limits
	Enricher chunk.Enricher // optional
}

// Chunker splits source files along syntax boundaries.
type Chunker struct {
	engine *chunk.Engine
}

var _ provider.ChunkingStrategy = (*Chunker)(nil)

// New creates a tree-sitter chunker. Zero limits fields fall back to the
// engine defaults.
func New(cfg Config) *Chunker {
	return &Chunker{
		engine: chunk.New(chunk.Config{Limits: cfg.Limits, Enricher: cfg.Enricher}),
	}
}

// Name returns the strategy name.
func (c *Chunker) Name() string {
	return "treesitter"
}

// Chunk splits a file into blocks based on its syntax tree. Markdown goes
// through header partitioning, HTML and Svelte through script extraction,
// everything else through a full parse. Languages without a grammar degrade
// to plain line chunking.
func (c *Chunker) Chunk(file *types.SourceFile) ([]*types.CodeBlock, error) {
	f := chunk.File{
		Path:     file.Path,
		Content:  string(file.Content),
		Hash:     file.Hash,
		Language: file.Language,
	}
	if f.Hash == "" {
		f.Hash = file.ComputeHash()
	}

	if isMarkdown(file.Language) {
		return c.chunkMarkdownFile(f, file.Content)
	}

	if isEmbeddedJSLanguage(file.Language) {
		blocks, err := c.chunkEmbedded(f, file.Content)
		if err == nil && len(blocks) > 0 {
			return blocks, nil
		}
		// No scripts found, chunk with the host language grammar.
	}

	lang := getLanguage(file.Language)
	if lang == nil {
		return c.engine.ChunkText(f), nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(lang)
	defer parser.Close()

	tree, err := parser.ParseCtx(context.Background(), nil, file.Content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return c.engine.ChunkText(f), nil
	}

	at := convertTree(root, 0, 0)
	annotateNames(at, file.Language, f.Content)
	captures := collectCaptures(at, file.Language, f.Content)
	return c.engine.ChunkCode(f, at, captures), nil
}

// SupportedLanguages returns languages supported by this chunker.
func (c *Chunker) SupportedLanguages() []string {
	return []string{
		"go", "python", "javascript", "typescript", "jsx", "tsx",
		"rust", "java", "c", "cpp", "h",
		"ruby", "php", "csharp", "kotlin", "swift", "scala",
		"html", "htm", "xhtml", "svelte",
		"lua", "sql", "proto", "protobuf", "markdown", "md",
		"bash", "sh", "shell", "css", "dockerfile", "yaml", "yml",
		"hcl", "tf", "terraform",
		"elixir", "ex", "exs", "elm", "groovy", "gradle",
		"ocaml", "ml", "mli", "toml", "cue",
	}
}

// SupportsLanguage checks if a language is supported.
func (c *Chunker) SupportsLanguage(language string) bool {
	return getLanguage(language) != nil
}

// Close releases resources. Parsers are per-call, so nothing is held.
func (c *Chunker) Close() error {
	return nil
}

func isMarkdown(language string) bool {
	return language == "markdown" || language == "md"
}

// getLanguage maps a language tag to its grammar.
func getLanguage(language string) *sitter.Language {
	switch language {
	case "go":
		return golang.GetLanguage()
	case "python":
		return python.GetLanguage()
	case "javascript", "jsx":
		return javascript.GetLanguage()
	case "typescript":
		return tstype.GetLanguage()
	case "tsx":
		return tsx.GetLanguage()
	case "rust":
		return rust.GetLanguage()
	case "java":
		return java.GetLanguage()
	case "c", "h":
		return tsc.GetLanguage()
	case "cpp", "hpp", "cc", "cxx":
		return cpp.GetLanguage()
	case "ruby", "rb":
		return ruby.GetLanguage()
	case "php":
		return php.GetLanguage()
	case "csharp", "cs":
		return csharp.GetLanguage()
	case "kotlin", "kt", "kts":
		return kotlin.GetLanguage()
	case "swift":
		return swift.GetLanguage()
	case "scala", "sc":
		return scala.GetLanguage()
	case "html", "htm", "xhtml":
		return html.GetLanguage()
	case "svelte":
		return svelte.GetLanguage()
	case "lua":
		return lua.GetLanguage()
	case "sql":
		return sql.GetLanguage()
	case "proto", "protobuf":
		return protobuf.GetLanguage()
	case "markdown", "md":
		return tsmarkdown.GetLanguage()
	case "bash", "sh", "shell":
		return bash.GetLanguage()
	case "css":
		return css.GetLanguage()
	case "dockerfile":
		return dockerfile.GetLanguage()
	case "yaml", "yml":
		return yaml.GetLanguage()
	case "hcl", "tf", "terraform":
		return hcl.GetLanguage()
	case "elixir", "ex", "exs":
		return elixir.GetLanguage()
	case "elm":
		return elm.GetLanguage()
	case "groovy", "gradle":
		return groovy.GetLanguage()
	case "ocaml", "ml", "mli":
		return ocaml.GetLanguage()
	case "toml":
		return toml.GetLanguage()
	case "cue":
		return cue.GetLanguage()
	}
	return nil
}
