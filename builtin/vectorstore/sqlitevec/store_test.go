package sqlitevec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codechisel/codechisel/pkg/types"
)

func containsString(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// newTestStore creates an initialized store backed by a temp database.
// Skips the test when the sqlite build lacks FTS5 or sqlite-vec.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sqlitevec-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store := New()
	if err := store.Init(filepath.Join(tmpDir, "test.db")); err != nil {
		if containsString(err.Error(), "fts5") || containsString(err.Error(), "sqlite-vec") {
			t.Skip("sqlite extensions not available in this environment")
		}
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func testBlock(path string, startLine int, segmentHash, content string) *types.CodeBlock {
	return &types.CodeBlock{
		FilePath:    path,
		Identifier:  "testFunc",
		Type:        "function_declaration",
		Language:    "go",
		StartLine:   startLine,
		EndLine:     startLine + 2,
		Content:     content,
		SegmentHash: segmentHash,
		FileHash:    "fhash-" + path,
	}
}

func TestStoreAndGetBlock(t *testing.T) {
	store := newTestStore(t)

	block := testBlock("main.go", 10, "aabbccdd0011", "func testFunc() {\n\treturn\n}")
	block.Extensions = map[string]any{"imports": []any{"fmt"}}

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: block, Embedding: []float32{0.1, 0.2, 0.3, 0.4}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	got, err := store.GetBlock(block.ID())
	if err != nil {
		t.Fatalf("GetBlock failed: %v", err)
	}
	if got.FilePath != "main.go" {
		t.Errorf("FilePath = %q, want main.go", got.FilePath)
	}
	if got.Identifier != "testFunc" {
		t.Errorf("Identifier = %q, want testFunc", got.Identifier)
	}
	if got.Type != "function_declaration" {
		t.Errorf("Type = %q, want function_declaration", got.Type)
	}
	if got.StartLine != 10 || got.EndLine != 12 {
		t.Errorf("lines = [%d, %d], want [10, 12]", got.StartLine, got.EndLine)
	}
	if got.Content != block.Content {
		t.Errorf("Content = %q, want %q", got.Content, block.Content)
	}
	if got.SegmentHash != "aabbccdd0011" {
		t.Errorf("SegmentHash = %q", got.SegmentHash)
	}
	if got.ID() != block.ID() {
		t.Errorf("ID = %q, want %q", got.ID(), block.ID())
	}
	if got.Extensions == nil {
		t.Fatal("Extensions not round-tripped")
	}
	imports, ok := got.Extensions["imports"].([]any)
	if !ok || len(imports) != 1 || imports[0] != "fmt" {
		t.Errorf("Extensions[imports] = %v, want [fmt]", got.Extensions["imports"])
	}
}

func TestGetBlockNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetBlock("missing.go:1:deadbeef")
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetBlocksByFileOrder(t *testing.T) {
	store := newTestStore(t)

	blocks := []*types.BlockWithEmbedding{
		{Block: testBlock("a.go", 50, "hash3aaaaaaa", "third block")},
		{Block: testBlock("a.go", 1, "hash1aaaaaaa", "first block")},
		{Block: testBlock("b.go", 5, "hash4bbbbbbb", "other file")},
		{Block: testBlock("a.go", 20, "hash2aaaaaaa", "second block")},
	}
	if err := store.StoreBlocks(blocks); err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	got, err := store.GetBlocksByFile("a.go")
	if err != nil {
		t.Fatalf("GetBlocksByFile failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d blocks, want 3", len(got))
	}
	wantLines := []int{1, 20, 50}
	for i, b := range got {
		if b.StartLine != wantLines[i] {
			t.Errorf("block %d: StartLine = %d, want %d", i, b.StartLine, wantLines[i])
		}
		if b.FilePath != "a.go" {
			t.Errorf("block %d: FilePath = %q, want a.go", i, b.FilePath)
		}
	}
}

func TestDeleteBlocksByFile(t *testing.T) {
	store := newTestStore(t)

	blocks := []*types.BlockWithEmbedding{
		{Block: testBlock("del.go", 1, "hashdel11111", "delete me"), Embedding: []float32{1, 0}},
		{Block: testBlock("keep.go", 1, "hashkeep1111", "keep me"), Embedding: []float32{0, 1}},
	}
	if err := store.StoreBlocks(blocks); err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	if err := store.DeleteBlocksByFile("del.go"); err != nil {
		t.Fatalf("DeleteBlocksByFile failed: %v", err)
	}

	got, err := store.GetBlocksByFile("del.go")
	if err != nil {
		t.Fatalf("GetBlocksByFile failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("deleted file still has %d blocks", len(got))
	}

	kept, err := store.GetBlocksByFile("keep.go")
	if err != nil {
		t.Fatalf("GetBlocksByFile failed: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("keep.go has %d blocks, want 1", len(kept))
	}
}

func TestBM25Search(t *testing.T) {
	store := newTestStore(t)

	walker := testBlock("walk.go", 1, "hashwalk1111", "func walkDirectory(root string) error { return nil }")
	parser := testBlock("parse.py", 1, "hashparse111", "def parse_config(path): return load(path)")
	parser.Language = "python"
	parser.Type = "function_definition"

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: walker},
		{Block: parser},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	ctx := context.Background()
	results, err := store.Search(ctx, &types.SearchRequest{
		Query: "walkDirectory",
		Mode:  types.SearchModeBM25,
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Block.FilePath != "walk.go" {
		t.Errorf("top result = %q, want walk.go", results[0].Block.FilePath)
	}
	if results[0].BM25Score <= 0 {
		t.Errorf("BM25Score = %f, want > 0", results[0].BM25Score)
	}

	// Language filter excludes the only match
	results, err = store.Search(ctx, &types.SearchRequest{
		Query:   "walkDirectory",
		Mode:    types.SearchModeBM25,
		Limit:   10,
		Filters: &types.SearchFilters{Languages: []string{"python"}},
	})
	if err != nil {
		t.Fatalf("filtered search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("language filter leaked %d results", len(results))
	}

	// File path glob filter
	results, err = store.Search(ctx, &types.SearchRequest{
		Query:   "parse_config",
		Mode:    types.SearchModeBM25,
		Limit:   10,
		Filters: &types.SearchFilters{FilePaths: []string{"*.py"}},
	})
	if err != nil {
		t.Fatalf("glob search failed: %v", err)
	}
	if len(results) != 1 || results[0].Block.FilePath != "parse.py" {
		t.Errorf("glob filter results = %v", results)
	}
}

func TestVectorSearch(t *testing.T) {
	store := newTestStore(t)

	near := testBlock("near.go", 1, "hashnear1111", "close to the query")
	far := testBlock("far.go", 1, "hashfar11111", "orthogonal to the query")

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: near, Embedding: []float32{1, 0, 0, 0}},
		{Block: far, Embedding: []float32{0, 1, 0, 0}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	results, err := store.Search(context.Background(), &types.SearchRequest{
		QueryVec: []float32{1, 0, 0, 0},
		Mode:     types.SearchModeVector,
		Limit:    2,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Block.FilePath != "near.go" {
		t.Errorf("top result = %q, want near.go", results[0].Block.FilePath)
	}
	if results[0].VectorScore < 0.99 {
		t.Errorf("identical vector score = %f, want ~1.0", results[0].VectorScore)
	}
	if results[1].VectorScore > 0.01 {
		t.Errorf("orthogonal vector score = %f, want ~0.0", results[1].VectorScore)
	}
}

func TestVectorSearchWithoutEmbeddings(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Search(context.Background(), &types.SearchRequest{
		QueryVec: []float32{1, 0},
		Mode:     types.SearchModeVector,
		Limit:    5,
	})
	if err == nil {
		t.Fatal("expected error when no embeddings are stored")
	}
}

func TestHybridSearch(t *testing.T) {
	store := newTestStore(t)

	// textMatch wins BM25, vecMatch wins vector similarity
	textMatch := testBlock("text.go", 1, "hashtext1111", "func handleWebsocketUpgrade(conn net.Conn) {}")
	vecMatch := testBlock("vec.go", 1, "hashvec11111", "func unrelatedName() {}")

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: textMatch, Embedding: []float32{0, 1, 0, 0}},
		{Block: vecMatch, Embedding: []float32{1, 0, 0, 0}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	results, err := store.Search(context.Background(), &types.SearchRequest{
		Query:    "handleWebsocketUpgrade",
		QueryVec: []float32{1, 0, 0, 0},
		Mode:     types.SearchModeHybrid,
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	// Both blocks must carry their component scores
	for _, r := range results {
		switch r.Block.FilePath {
		case "text.go":
			if r.BM25Score <= 0 {
				t.Errorf("text.go BM25Score = %f, want > 0", r.BM25Score)
			}
		case "vec.go":
			if r.VectorScore < 0.99 {
				t.Errorf("vec.go VectorScore = %f, want ~1.0", r.VectorScore)
			}
		default:
			t.Errorf("unexpected result %q", r.Block.FilePath)
		}
		if r.Score <= 0 {
			t.Errorf("%s combined Score = %f, want > 0", r.Block.FilePath, r.Score)
		}
	}

	// Default weights favor the vector match
	if results[0].Block.FilePath != "vec.go" {
		t.Errorf("top hybrid result = %q, want vec.go", results[0].Block.FilePath)
	}
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	block := testBlock("clear.go", 1, "hashclear111", "func gone() {}")
	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: block, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}
	if err := store.SetFileHash("clear.go", "abc", "cfg"); err != nil {
		t.Fatalf("SetFileHash failed: %v", err)
	}
	if err := store.SetMetadata(&types.IndexMetadata{SchemaVersion: SchemaVersion}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalBlocks != 0 || stats.IndexedFiles != 0 {
		t.Errorf("stats after clear = %+v, want empty", stats)
	}

	hash, err := store.GetFileHash("clear.go")
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("file hash survived clear: %q", hash)
	}

	meta, err := store.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("metadata survived clear: %+v", meta)
	}

	// Store must stay usable, including the vector table
	err = store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: block, Embedding: []float32{0, 1, 0}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks after Clear failed: %v", err)
	}
}

func TestMetadataRoundtrip(t *testing.T) {
	store := newTestStore(t)

	meta, err := store.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("fresh store has metadata: %+v", meta)
	}

	now := time.Now().UTC().Truncate(time.Second)
	want := &types.IndexMetadata{
		SchemaVersion:       SchemaVersion,
		CreatedAt:           now,
		LastUpdated:         now,
		ToolVersion:         "0.1.0",
		ConfigHash:          "cfg123",
		EmbeddingProvider:   "ollama",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 768,
		ChunkingStrategy:    "treesitter",
	}
	if err := store.SetMetadata(want); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	got, err := store.GetMetadata()
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got == nil {
		t.Fatal("metadata missing after SetMetadata")
	}
	if got.SchemaVersion != SchemaVersion || got.EmbeddingModel != "nomic-embed-text" {
		t.Errorf("metadata = %+v", got)
	}
	if !got.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated = %v, want %v", got.LastUpdated, now)
	}
}

func TestFileCache(t *testing.T) {
	store := newTestStore(t)

	hash, err := store.GetFileHash("unknown.go")
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("unknown file hash = %q, want empty", hash)
	}

	if err := store.SetFileHash("a.go", "hash-a", "cfg"); err != nil {
		t.Fatalf("SetFileHash failed: %v", err)
	}
	if err := store.SetFileHash("b.go", "hash-b", "cfg"); err != nil {
		t.Fatalf("SetFileHash failed: %v", err)
	}

	hash, err = store.GetFileHash("a.go")
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if hash != "hash-a" {
		t.Errorf("hash = %q, want hash-a", hash)
	}

	all, err := store.GetAllFileHashes()
	if err != nil {
		t.Fatalf("GetAllFileHashes failed: %v", err)
	}
	if len(all) != 2 || all["a.go"] != "hash-a" || all["b.go"] != "hash-b" {
		t.Errorf("all hashes = %v", all)
	}

	if err := store.DeleteFileCache("a.go"); err != nil {
		t.Fatalf("DeleteFileCache failed: %v", err)
	}
	hash, err = store.GetFileHash("a.go")
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if hash != "" {
		t.Errorf("deleted file hash = %q, want empty", hash)
	}
}

func TestGetStats(t *testing.T) {
	store := newTestStore(t)

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: testBlock("one.go", 1, "hashone11111", "block one")},
		{Block: testBlock("one.go", 10, "hashone22222", "block two")},
		{Block: testBlock("two.go", 1, "hashtwo11111", "block three")},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	stats, err := store.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalBlocks != 3 {
		t.Errorf("TotalBlocks = %d, want 3", stats.TotalBlocks)
	}
	if stats.IndexedFiles != 2 {
		t.Errorf("IndexedFiles = %d, want 2", stats.IndexedFiles)
	}
	if stats.DBSizeBytes <= 0 {
		t.Errorf("DBSizeBytes = %d, want > 0", stats.DBSizeBytes)
	}
}

func TestEmbeddingsSurviveReopen(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "sqlitevec-reopen")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)
	dbPath := filepath.Join(tmpDir, "test.db")

	store := New()
	if err := store.Init(dbPath); err != nil {
		if containsString(err.Error(), "fts5") || containsString(err.Error(), "sqlite-vec") {
			t.Skip("sqlite extensions not available in this environment")
		}
		t.Fatalf("Init failed: %v", err)
	}

	block := testBlock("persist.go", 1, "hashpersist1", "func persisted() {}")
	err = store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: block, Embedding: []float32{1, 0, 0, 0}},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := New()
	if err := reopened.Init(dbPath); err != nil {
		t.Fatalf("reopen Init failed: %v", err)
	}
	defer reopened.Close()

	if reopened.dimensions != 4 {
		t.Errorf("dimensions after reopen = %d, want 4", reopened.dimensions)
	}

	results, err := reopened.Search(context.Background(), &types.SearchRequest{
		QueryVec: []float32{1, 0, 0, 0},
		Mode:     types.SearchModeVector,
		Limit:    1,
	})
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(results) != 1 || results[0].Block.FilePath != "persist.go" {
		t.Errorf("results after reopen = %v", results)
	}
}

func TestFTSHealth(t *testing.T) {
	store := newTestStore(t)

	if err := store.CheckFTSHealth(); err != nil {
		t.Errorf("fresh store FTS unhealthy: %v", err)
	}

	err := store.StoreBlocks([]*types.BlockWithEmbedding{
		{Block: testBlock("fts.go", 1, "hashfts11111", "searchable content")},
	})
	if err != nil {
		t.Fatalf("StoreBlocks failed: %v", err)
	}

	if err := store.RebuildFTS(); err != nil {
		t.Fatalf("RebuildFTS failed: %v", err)
	}

	results, err := store.Search(context.Background(), &types.SearchRequest{
		Query: "searchable",
		Mode:  types.SearchModeBM25,
		Limit: 5,
	})
	if err != nil {
		t.Fatalf("Search after rebuild failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results after rebuild, want 1", len(results))
	}
}
