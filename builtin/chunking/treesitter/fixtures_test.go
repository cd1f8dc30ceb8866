package treesitter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/codechisel/codechisel/pkg/types"
)

// testDataDir locates testdata/languages by walking up from the package
// directory to the module root.
func testDataDir() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "testdata", "languages")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func TestChunkFixtureCorpus(t *testing.T) {
	root := testDataDir()
	if root == "" {
		t.Fatal("could not locate testdata/languages")
	}

	tests := []struct {
		file       string
		language   string
		wantBlocks int
		wantIdents []string
	}{
		{"go/basic.go", "go", 6,
			[]string{"Task", "Queue", "NewQueue", "Push", "Pop", "Pending"}},
		{"python/basic.py", "python", 3,
			[]string{"Task", "TaskQueue", "drain"}},
		{"rust/basic.rs", "rust", 5,
			[]string{"Task", "Sink", "Queue", "impl Queue", "drain"}},
		{"java/TaskQueue.java", "java", 3,
			[]string{"Sink", "Task", "TaskQueue"}},
		{"cpp/basic.cpp", "cpp", 5,
			[]string{"Task", "TaskQueue", "TaskQueue::push", "TaskQueue::pop", "clamp_priority"}},
	}

	chunker := New(Config{})
	defer chunker.Close()

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(root, tt.file)
			content, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read fixture: %v", err)
			}
			if lang := DetectLanguage(path); lang != tt.language {
				t.Fatalf("DetectLanguage(%s) = %q, want %q", tt.file, lang, tt.language)
			}

			file := &types.SourceFile{Path: path, Content: content, Language: tt.language}
			file.Hash = file.ComputeHash()

			blocks, err := chunker.Chunk(file)
			if err != nil {
				t.Fatalf("Chunk() error: %v", err)
			}
			if len(blocks) != tt.wantBlocks {
				for _, b := range blocks {
					t.Logf("  %s %q [%d,%d]", b.Type, b.Identifier, b.StartLine, b.EndLine)
				}
				t.Fatalf("got %d blocks, want %d", len(blocks), tt.wantBlocks)
			}

			idents := make(map[string]bool, len(blocks))
			for _, b := range blocks {
				idents[b.Identifier] = true
			}
			for _, want := range tt.wantIdents {
				if !idents[want] {
					t.Errorf("no block for %q", want)
				}
			}

			src := string(content)
			lineCount := strings.Count(src, "\n") + 1
			hashes := make(map[string]bool, len(blocks))
			for i, b := range blocks {
				if b.StartLine < 1 || b.EndLine < b.StartLine || b.EndLine > lineCount {
					t.Errorf("blocks[%d] span [%d,%d] out of range", i, b.StartLine, b.EndLine)
				}
				if b.Content == "" || !strings.Contains(src, b.Content) {
					t.Errorf("blocks[%d] content is not a slice of the source", i)
				}
				if b.Language != tt.language {
					t.Errorf("blocks[%d].Language = %q, want %q", i, b.Language, tt.language)
				}
				if b.FileHash != file.Hash {
					t.Errorf("blocks[%d].FileHash = %q, want file hash", i, b.FileHash)
				}
				if b.SegmentHash == "" || hashes[b.SegmentHash] {
					t.Errorf("blocks[%d] segment hash empty or duplicated", i)
				}
				hashes[b.SegmentHash] = true
			}
		})
	}
}
