package treesitter

import (
	"path/filepath"
	"strings"

	"github.com/codechisel/codechisel/pkg/provider"
)

// Detector detects languages from file paths and content.
type Detector struct{}

var _ provider.LanguageDetector = (*Detector)(nil)

// NewDetector creates a language detector.
func NewDetector() *Detector {
	return &Detector{}
}

// DetectLanguage detects language from the file path.
func (d *Detector) DetectLanguage(filePath string) string {
	return DetectLanguage(filePath)
}

// DetectFromContent guesses a language from the content itself. Only
// unambiguous signatures are matched; everything else is "text".
func (d *Detector) DetectFromContent(content []byte) string {
	head := content
	if len(head) > 512 {
		head = head[:512]
	}
	text := string(head)

	if strings.HasPrefix(text, "#!") {
		line := text
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		switch interp := shebangInterpreter(line); {
		case strings.HasPrefix(interp, "python"):
			return "python"
		case interp == "node", interp == "nodejs":
			return "javascript"
		case interp == "ruby":
			return "ruby"
		case interp == "perl":
			return "perl"
		case interp == "bash", interp == "sh", interp == "zsh", interp == "dash", interp == "ksh":
			return "bash"
		}
		return "text"
	}

	trimmed := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(trimmed, "<?php"):
		return "php"
	case strings.HasPrefix(trimmed, "<!doctype html"), strings.HasPrefix(trimmed, "<html"):
		return "html"
	}
	return "text"
}

// shebangInterpreter extracts the interpreter name from a shebang line,
// resolving the env indirection ("#!/usr/bin/env python3" → "python3").
func shebangInterpreter(line string) string {
	fields := strings.Fields(strings.TrimPrefix(line, "#!"))
	if len(fields) == 0 {
		return ""
	}
	interp := filepath.Base(fields[0])
	if interp == "env" && len(fields) > 1 {
		interp = filepath.Base(fields[1])
	}
	return interp
}

// DetectLanguage detects language from file extension.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.ToLower(filepath.Base(path))

	// Handle special filenames first
	if base == "dockerfile" {
		return "dockerfile"
	}

	switch ext {
	// Core programming languages
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".js":
		return "javascript"
	case ".ts":
		return "typescript"
	case ".jsx":
		return "jsx"
	case ".tsx":
		return "tsx"
	case ".rs":
		return "rust"
	case ".java":
		return "java"
	case ".c":
		return "c"
	case ".cpp", ".cc", ".cxx":
		return "cpp"
	case ".h", ".hpp":
		return "h"
	case ".rb":
		return "ruby"
	case ".php":
		return "php"
	case ".swift":
		return "swift"
	case ".kt", ".kts":
		return "kotlin"
	case ".scala", ".sc":
		return "scala"
	case ".cs":
		return "csharp"
	case ".lua":
		return "lua"
	case ".sql":
		return "sql"
	case ".dart":
		return "dart"
	case ".r":
		return "r"
	case ".ex", ".exs":
		return "elixir"
	case ".elm":
		return "elm"
	case ".groovy", ".gradle":
		return "groovy"
	case ".ml", ".mli":
		return "ocaml"

	// Markup and data formats
	case ".html", ".htm", ".xhtml":
		return "html"
	case ".css":
		return "css"
	case ".svelte":
		return "svelte"
	case ".md", ".markdown":
		return "markdown"
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	case ".toml":
		return "toml"
	case ".proto":
		return "proto"
	case ".cue":
		return "cue"

	// Shell and scripting
	case ".sh", ".bash":
		return "bash"
	case ".ps1", ".psm1", ".psd1":
		return "powershell"

	// Infrastructure
	case ".tf", ".hcl":
		return "hcl"

	// Functional languages
	case ".hs":
		return "haskell"
	case ".erl":
		return "erlang"
	case ".pl", ".pm":
		return "perl"
	case ".jl":
		return "julia"

	default:
		return "text"
	}
}
