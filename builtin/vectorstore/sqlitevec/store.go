// Package sqlitevec implements VectorStore using sqlite-vec for vector search
// and FTS5 for BM25 full-text search.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codechisel/codechisel/pkg/provider"
	"github.com/codechisel/codechisel/pkg/types"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Ensure sqlite-vec Auto() is called exactly once before any db connection
	vecAutoOnce sync.Once
)

// SchemaVersion is incremented when schema changes require reindexing.
const SchemaVersion = 1

// dimensionsKey is the metadata key holding the embedding dimension count,
// persisted so embeddings survive process restarts.
const dimensionsKey = "embedding_dimensions"

// Store implements the VectorStore interface using sqlite-vec.
type Store struct {
	db         *sql.DB
	path       string
	dimensions int
	enableFTS  bool
}

// New creates a new sqlite-vec store.
func New() *Store {
	return &Store{
		enableFTS: true,
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return "sqlitevec"
}

// Init initializes the store at the given path.
func (s *Store) Init(path string) error {
	s.path = path

	// Register sqlite-vec extension before opening any database connection.
	// This must be called once before sql.Open() to ensure vec_* functions are available.
	vecAutoOnce.Do(func() {
		sqlite_vec.Auto()
	})

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Open database with sqlite-vec extension
	// WAL mode for concurrent reads, busy_timeout to wait for locks instead of failing immediately
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	s.db = db

	// Enable sqlite-vec extension
	if _, err := db.Exec("SELECT vec_version()"); err != nil {
		return fmt.Errorf("sqlite-vec extension not available: %w", err)
	}

	// Create schema
	if err := s.createSchema(); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Restore the vector table dimension from a previous run so stored
	// embeddings are not dropped on reopen.
	s.dimensions = s.loadDimensions()

	// Check FTS health and auto-repair if corrupted
	if err := s.CheckFTSHealth(); err != nil {
		slog.Warn("FTS index unhealthy, rebuilding", "error", err)
		if rebuildErr := s.RebuildFTS(); rebuildErr != nil {
			slog.Error("failed to rebuild FTS index", "error", rebuildErr)
			// Continue anyway - search will work without FTS
		} else {
			slog.Info("FTS index rebuilt successfully")
		}
	}

	return nil
}

// createSchema creates all necessary tables.
func (s *Store) createSchema() error {
	// Metadata table
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	// Blocks table
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS blocks (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			identifier TEXT,
			block_type TEXT NOT NULL,
			language TEXT,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			content TEXT NOT NULL,
			segment_hash TEXT NOT NULL,
			file_hash TEXT NOT NULL,
			extensions TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Index on file_path for deletion and per-file listing
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_blocks_file_path ON blocks(file_path)`)
	if err != nil {
		return err
	}

	// FTS5 for BM25 search
	if s.enableFTS {
		_, err = s.db.Exec(`
			CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
				id,
				content,
				identifier,
				content='blocks',
				content_rowid='rowid',
				tokenize='porter unicode61'
			)
		`)
		if err != nil {
			return err
		}

		// Triggers to keep FTS in sync
		_, err = s.db.Exec(`
			CREATE TRIGGER IF NOT EXISTS blocks_ai AFTER INSERT ON blocks BEGIN
				INSERT INTO blocks_fts(rowid, id, content, identifier)
				VALUES (new.rowid, new.id, new.content, new.identifier);
			END
		`)
		if err != nil {
			return err
		}

		_, err = s.db.Exec(`
			CREATE TRIGGER IF NOT EXISTS blocks_ad AFTER DELETE ON blocks BEGIN
				INSERT INTO blocks_fts(blocks_fts, rowid, id, content, identifier)
				VALUES('delete', old.rowid, old.id, old.content, old.identifier);
			END
		`)
		if err != nil {
			return err
		}

		_, err = s.db.Exec(`
			CREATE TRIGGER IF NOT EXISTS blocks_au AFTER UPDATE ON blocks BEGIN
				INSERT INTO blocks_fts(blocks_fts, rowid, id, content, identifier)
				VALUES('delete', old.rowid, old.id, old.content, old.identifier);
				INSERT INTO blocks_fts(rowid, id, content, identifier)
				VALUES (new.rowid, new.id, new.content, new.identifier);
			END
		`)
		if err != nil {
			return err
		}
	}

	// File cache table for incremental indexing
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS file_cache (
			file_path TEXT PRIMARY KEY,
			file_hash TEXT NOT NULL,
			config_hash TEXT NOT NULL,
			indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	return nil
}

// createVectorTable creates the vector table with the specified dimensions.
// A dimension change drops the table because stored vectors are unusable
// against a differently sized query vector.
func (s *Store) createVectorTable(dimensions int) error {
	if s.dimensions == dimensions {
		return nil // Already created
	}

	// Drop existing vector table if dimensions changed
	if s.dimensions != 0 {
		_, _ = s.db.Exec("DROP TABLE IF EXISTS block_embeddings")
	}

	// Create vector table using sqlite-vec
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS block_embeddings USING vec0(
			block_id TEXT PRIMARY KEY,
			embedding float[%d]
		)
	`, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	if err := s.saveDimensions(dimensions); err != nil {
		return err
	}
	s.dimensions = dimensions

	return nil
}

// loadDimensions reads the persisted embedding dimension, 0 if none.
func (s *Store) loadDimensions() int {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", dimensionsKey).Scan(&value)
	if err != nil {
		return 0
	}
	dims, _ := strconv.Atoi(value)
	return dims
}

// saveDimensions persists the embedding dimension.
func (s *Store) saveDimensions(dimensions int) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)
	`, dimensionsKey, strconv.Itoa(dimensions))
	return err
}

// Close releases resources and closes connections.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Clear drops all indexed data but keeps the store usable.
func (s *Store) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// FTS entries are removed by the delete trigger
	if _, err := tx.Exec("DELETE FROM blocks"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM file_cache"); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM metadata"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// Virtual table DDL happens outside the transaction
	if _, err := s.db.Exec("DROP TABLE IF EXISTS block_embeddings"); err != nil {
		return fmt.Errorf("failed to drop vector table: %w", err)
	}
	s.dimensions = 0

	return nil
}

// StoreBlocks stores blocks with their embeddings.
func (s *Store) StoreBlocks(blocks []*types.BlockWithEmbedding) error {
	if len(blocks) == 0 {
		return nil
	}

	// Ensure vector table is created with correct dimensions
	dims := 0
	for _, bwe := range blocks {
		if len(bwe.Embedding) > 0 {
			dims = len(bwe.Embedding)
			break
		}
	}
	if dims > 0 {
		if err := s.createVectorTable(dims); err != nil {
			return err
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Prepare statements
	blockStmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO blocks
		(id, file_path, identifier, block_type, language, start_line, end_line, content, segment_hash, file_hash, extensions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer blockStmt.Close()

	// The embeddings table only exists once a dimension is known; skip the
	// statement for embedding-less batches.
	var embeddingStmt *sql.Stmt
	if dims > 0 {
		embeddingStmt, err = tx.Prepare(`
			INSERT OR REPLACE INTO block_embeddings (block_id, embedding)
			VALUES (?, ?)
		`)
		if err != nil {
			return err
		}
		defer embeddingStmt.Close()
	}

	for _, bwe := range blocks {
		b := bwe.Block
		id := b.ID()

		var extensions any
		if len(b.Extensions) > 0 {
			data, err := json.Marshal(b.Extensions)
			if err != nil {
				return fmt.Errorf("failed to encode extensions for %s: %w", id, err)
			}
			extensions = string(data)
		}

		// Store block
		_, err := blockStmt.Exec(
			id, b.FilePath, b.Identifier, b.Type, b.Language,
			b.StartLine, b.EndLine, b.Content, b.SegmentHash, b.FileHash,
			extensions,
		)
		if err != nil {
			return fmt.Errorf("failed to store block %s: %w", id, err)
		}

		// Store embedding
		if len(bwe.Embedding) > 0 {
			embBytes := floatsToBytes(bwe.Embedding)
			_, err := embeddingStmt.Exec(id, embBytes)
			if err != nil {
				return fmt.Errorf("failed to store embedding for %s: %w", id, err)
			}
		}
	}

	return tx.Commit()
}

// GetBlock retrieves a block by ID.
func (s *Store) GetBlock(id string) (*types.CodeBlock, error) {
	row := s.db.QueryRow(`
		SELECT file_path, identifier, block_type, language, start_line, end_line, content, segment_hash, file_hash, extensions
		FROM blocks WHERE id = ?
	`, id)

	var block types.CodeBlock
	var identifier, language, extensions sql.NullString

	err := row.Scan(
		&block.FilePath, &identifier, &block.Type, &language,
		&block.StartLine, &block.EndLine, &block.Content,
		&block.SegmentHash, &block.FileHash, &extensions,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("block %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	block.Identifier = identifier.String
	block.Language = language.String
	if extensions.Valid && extensions.String != "" {
		if err := json.Unmarshal([]byte(extensions.String), &block.Extensions); err != nil {
			return nil, fmt.Errorf("failed to decode extensions for %s: %w", id, err)
		}
	}

	return &block, nil
}

// GetBlocksByFile returns all blocks for a file in line order.
func (s *Store) GetBlocksByFile(filePath string) ([]*types.CodeBlock, error) {
	rows, err := s.db.Query(`
		SELECT file_path, identifier, block_type, language, start_line, end_line, content, segment_hash, file_hash, extensions
		FROM blocks WHERE file_path = ?
		ORDER BY start_line, end_line
	`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []*types.CodeBlock
	for rows.Next() {
		var block types.CodeBlock
		var identifier, language, extensions sql.NullString

		err := rows.Scan(
			&block.FilePath, &identifier, &block.Type, &language,
			&block.StartLine, &block.EndLine, &block.Content,
			&block.SegmentHash, &block.FileHash, &extensions,
		)
		if err != nil {
			return nil, err
		}

		block.Identifier = identifier.String
		block.Language = language.String
		if extensions.Valid && extensions.String != "" {
			if err := json.Unmarshal([]byte(extensions.String), &block.Extensions); err != nil {
				return nil, fmt.Errorf("failed to decode extensions for %s: %w", block.ID(), err)
			}
		}

		blocks = append(blocks, &block)
	}

	return blocks, nil
}

// DeleteBlocksByFile removes all blocks for a file.
func (s *Store) DeleteBlocksByFile(filePath string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Delete embeddings first, keyed by the IDs of the file's blocks
	if s.dimensions > 0 {
		rows, err := tx.Query("SELECT id FROM blocks WHERE file_path = ?", filePath)
		if err != nil {
			return err
		}

		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()

		for _, id := range ids {
			_, err := tx.Exec("DELETE FROM block_embeddings WHERE block_id = ?", id)
			if err != nil {
				return err
			}
		}
	}

	// Delete blocks (FTS will be updated by trigger)
	_, err = tx.Exec("DELETE FROM blocks WHERE file_path = ?", filePath)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Search performs hybrid search (BM25 + vector).
func (s *Store) Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	switch req.Mode {
	case types.SearchModeVector:
		return s.vectorSearch(ctx, req)
	case types.SearchModeBM25:
		return s.bm25Search(ctx, req)
	case types.SearchModeHybrid:
		return s.hybridSearch(ctx, req)
	default:
		return s.hybridSearch(ctx, req) // Default to hybrid
	}
}

// vectorSearch performs pure vector similarity search.
func (s *Store) vectorSearch(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	if len(req.QueryVec) == 0 {
		return nil, errors.New("query vector is required for vector search")
	}
	if s.dimensions == 0 {
		return nil, errors.New("no embeddings stored")
	}

	limit := req.Limit
	if req.UseReranker && req.RerankCandidates > 0 {
		limit = req.RerankCandidates
	}

	embBytes := floatsToBytes(req.QueryVec)

	// Vector similarity search using sqlite-vec
	query := `
		SELECT
			vec_distance_cosine(be.embedding, ?) as distance,
			b.file_path, b.identifier, b.block_type, b.language,
			b.start_line, b.end_line, b.content, b.segment_hash, b.file_hash
		FROM block_embeddings be
		JOIN blocks b ON be.block_id = b.id
	`

	args := []any{embBytes}

	// Add filters
	whereClauses := []string{}
	if req.Filters != nil {
		if len(req.Filters.Languages) > 0 {
			placeholders := make([]string, len(req.Filters.Languages))
			for i, lang := range req.Filters.Languages {
				placeholders[i] = "?"
				args = append(args, lang)
			}
			whereClauses = append(whereClauses, "b.language IN ("+strings.Join(placeholders, ",")+")")
		}
		if len(req.Filters.BlockTypes) > 0 {
			placeholders := make([]string, len(req.Filters.BlockTypes))
			for i, bt := range req.Filters.BlockTypes {
				placeholders[i] = "?"
				args = append(args, bt)
			}
			whereClauses = append(whereClauses, "b.block_type IN ("+strings.Join(placeholders, ",")+")")
		}
		if len(req.Filters.FilePaths) > 0 {
			globs := make([]string, len(req.Filters.FilePaths))
			for i, pattern := range req.Filters.FilePaths {
				globs[i] = "b.file_path GLOB ?"
				args = append(args, pattern)
			}
			whereClauses = append(whereClauses, "("+strings.Join(globs, " OR ")+")")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		var (
			distance float64
			block    types.CodeBlock
		)
		var identifier, language sql.NullString

		err := rows.Scan(
			&distance,
			&block.FilePath, &identifier, &block.Type, &language,
			&block.StartLine, &block.EndLine, &block.Content,
			&block.SegmentHash, &block.FileHash,
		)
		if err != nil {
			return nil, err
		}

		block.Identifier = identifier.String
		block.Language = language.String

		// Convert distance to similarity score (cosine distance -> similarity)
		score := float32(1.0 - distance)

		results = append(results, &types.SearchResult{
			Block:       &block,
			Score:       score,
			VectorScore: score,
		})
	}

	return results, nil
}

// bm25Search performs BM25 full-text search.
func (s *Store) bm25Search(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("query text is required for BM25 search")
	}

	limit := req.Limit
	if req.UseReranker && req.RerankCandidates > 0 {
		limit = req.RerankCandidates
	}

	// FTS5 BM25 search
	query := `
		SELECT
			bm25(blocks_fts) as bm25_score,
			b.file_path, b.identifier, b.block_type, b.language,
			b.start_line, b.end_line, b.content, b.segment_hash, b.file_hash
		FROM blocks_fts fts
		JOIN blocks b ON fts.id = b.id
		WHERE blocks_fts MATCH ?
	`

	args := []any{escapeFTSQuery(req.Query)}

	// Add filters
	if req.Filters != nil {
		if len(req.Filters.Languages) > 0 {
			placeholders := make([]string, len(req.Filters.Languages))
			for i, lang := range req.Filters.Languages {
				placeholders[i] = "?"
				args = append(args, lang)
			}
			query += " AND b.language IN (" + strings.Join(placeholders, ",") + ")"
		}
		if len(req.Filters.BlockTypes) > 0 {
			placeholders := make([]string, len(req.Filters.BlockTypes))
			for i, bt := range req.Filters.BlockTypes {
				placeholders[i] = "?"
				args = append(args, bt)
			}
			query += " AND b.block_type IN (" + strings.Join(placeholders, ",") + ")"
		}
		if len(req.Filters.FilePaths) > 0 {
			globs := make([]string, len(req.Filters.FilePaths))
			for i, pattern := range req.Filters.FilePaths {
				globs[i] = "b.file_path GLOB ?"
				args = append(args, pattern)
			}
			query += " AND (" + strings.Join(globs, " OR ") + ")"
		}
	}

	query += " ORDER BY bm25_score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("BM25 search failed: %w", err)
	}
	defer rows.Close()

	var results []*types.SearchResult
	for rows.Next() {
		var (
			bm25Score float64
			block     types.CodeBlock
		)
		var identifier, language sql.NullString

		err := rows.Scan(
			&bm25Score,
			&block.FilePath, &identifier, &block.Type, &language,
			&block.StartLine, &block.EndLine, &block.Content,
			&block.SegmentHash, &block.FileHash,
		)
		if err != nil {
			return nil, err
		}

		block.Identifier = identifier.String
		block.Language = language.String

		// BM25 scores are negative (lower is better), normalize to 0-1
		score := float32(1.0 / (1.0 + math.Abs(bm25Score)))

		results = append(results, &types.SearchResult{
			Block:     &block,
			Score:     score,
			BM25Score: score,
		})
	}

	return results, nil
}

// hybridSearch combines vector and BM25 search with weighted scoring.
func (s *Store) hybridSearch(ctx context.Context, req *types.SearchRequest) ([]*types.SearchResult, error) {
	// Get candidates from both search methods
	candidateLimit := req.Limit * 3 // Get more candidates for combining
	if req.UseReranker && req.RerankCandidates > 0 {
		candidateLimit = req.RerankCandidates
	}

	// Collect results from both methods
	vectorResults := make(map[string]*types.SearchResult)
	bm25Results := make(map[string]*types.SearchResult)

	// Vector search if we have embeddings
	if len(req.QueryVec) > 0 && s.dimensions > 0 {
		vecReq := *req
		vecReq.Mode = types.SearchModeVector
		vecReq.Limit = candidateLimit
		vecReq.UseReranker = false

		results, err := s.vectorSearch(ctx, &vecReq)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			vectorResults[r.Block.ID()] = r
		}
	}

	// BM25 search if we have query text
	if req.Query != "" {
		bm25Req := *req
		bm25Req.Mode = types.SearchModeBM25
		bm25Req.Limit = candidateLimit
		bm25Req.UseReranker = false

		results, err := s.bm25Search(ctx, &bm25Req)
		if err != nil {
			// BM25 might fail if no FTS index, continue with vector only
			if len(vectorResults) > 0 {
				var finalResults []*types.SearchResult
				for _, r := range vectorResults {
					finalResults = append(finalResults, r)
				}
				sort.Slice(finalResults, func(i, j int) bool {
					return finalResults[i].Score > finalResults[j].Score
				})
				if len(finalResults) > req.Limit {
					finalResults = finalResults[:req.Limit]
				}
				return finalResults, nil
			}
			return nil, err
		}
		for _, r := range results {
			bm25Results[r.Block.ID()] = r
		}
	}

	// Combine results with weighted scoring
	vectorWeight := req.VectorWeight
	bm25Weight := req.BM25Weight
	if vectorWeight == 0 && bm25Weight == 0 {
		vectorWeight = 0.7
		bm25Weight = 0.3
	}

	combinedResults := make(map[string]*types.SearchResult)

	for id, vr := range vectorResults {
		result := &types.SearchResult{
			Block:       vr.Block,
			VectorScore: vr.VectorScore,
		}
		if br, ok := bm25Results[id]; ok {
			result.BM25Score = br.BM25Score
		}
		result.Score = result.VectorScore*vectorWeight + result.BM25Score*bm25Weight
		combinedResults[id] = result
	}

	for id, br := range bm25Results {
		if _, exists := combinedResults[id]; !exists {
			result := &types.SearchResult{
				Block:     br.Block,
				BM25Score: br.BM25Score,
			}
			result.Score = result.VectorScore*vectorWeight + result.BM25Score*bm25Weight
			combinedResults[id] = result
		}
	}

	// Convert to slice and sort by score
	var results []*types.SearchResult
	for _, r := range combinedResults {
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	// Limit results
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	return results, nil
}

// GetMetadata returns index metadata, nil if none has been stored.
func (s *Store) GetMetadata() (*types.IndexMetadata, error) {
	row := s.db.QueryRow("SELECT value FROM metadata WHERE key = 'index_metadata'")

	var jsonData string
	err := row.Scan(&jsonData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var meta types.IndexMetadata
	if err := json.Unmarshal([]byte(jsonData), &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

// SetMetadata stores index metadata.
func (s *Store) SetMetadata(meta *types.IndexMetadata) error {
	jsonData, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('index_metadata', ?)
	`, string(jsonData))
	return err
}

// GetStats returns store statistics.
func (s *Store) GetStats() (*types.StoreStats, error) {
	stats := &types.StoreStats{}

	// Count blocks
	row := s.db.QueryRow("SELECT COUNT(*) FROM blocks")
	if err := row.Scan(&stats.TotalBlocks); err != nil {
		return nil, err
	}

	// Count unique files
	row = s.db.QueryRow("SELECT COUNT(DISTINCT file_path) FROM blocks")
	if err := row.Scan(&stats.IndexedFiles); err != nil {
		return nil, err
	}

	// Get DB file size
	if info, err := os.Stat(s.path); err == nil {
		stats.DBSizeBytes = info.Size()
	}

	// Get last indexed time
	meta, err := s.GetMetadata()
	if err == nil && meta != nil {
		stats.LastIndexed = meta.LastUpdated
	}

	return stats, nil
}

// GetFileHash returns the cached hash for a file.
func (s *Store) GetFileHash(filePath string) (string, error) {
	row := s.db.QueryRow("SELECT file_hash FROM file_cache WHERE file_path = ?", filePath)

	var hash string
	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetFileHash stores the hash for a file.
func (s *Store) SetFileHash(filePath, hash, configHash string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO file_cache (file_path, file_hash, config_hash, indexed_at)
		VALUES (?, ?, ?, ?)
	`, filePath, hash, configHash, time.Now())
	return err
}

// GetAllFileHashes returns all cached file hashes.
func (s *Store) GetAllFileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT file_path, file_hash FROM file_cache")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		hashes[path] = hash
	}

	return hashes, nil
}

// DeleteFileCache removes file from cache.
func (s *Store) DeleteFileCache(filePath string) error {
	_, err := s.db.Exec("DELETE FROM file_cache WHERE file_path = ?", filePath)
	return err
}

// Helper functions

// floatsToBytes converts float32 slice to bytes for sqlite-vec.
func floatsToBytes(floats []float32) []byte {
	bytes := make([]byte, len(floats)*4)
	for i, f := range floats {
		bits := math.Float32bits(f)
		bytes[i*4] = byte(bits)
		bytes[i*4+1] = byte(bits >> 8)
		bytes[i*4+2] = byte(bits >> 16)
		bytes[i*4+3] = byte(bits >> 24)
	}
	return bytes
}

// escapeFTSQuery escapes special characters in FTS5 query.
func escapeFTSQuery(query string) string {
	// FTS5 special characters that need escaping
	special := []string{"*", "\"", "(", ")", ":", "-", "^", "~"}
	result := query
	for _, s := range special {
		result = strings.ReplaceAll(result, s, "\""+s+"\"")
	}
	return result
}

// CheckFTSHealth verifies that the FTS index is in sync with the blocks table.
// Returns nil if healthy, error describing the issue otherwise.
func (s *Store) CheckFTSHealth() error {
	if !s.enableFTS {
		return nil
	}

	// Check if FTS table exists
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='blocks_fts'
	`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check FTS table existence: %w", err)
	}
	if exists == 0 {
		return nil // FTS not created yet, will be created on first use
	}

	// Try a simple query that exercises the FTS JOIN
	// This will fail if there are orphaned FTS entries
	_, err = s.db.Exec(`
		SELECT b.id FROM blocks_fts fts
		JOIN blocks b ON fts.rowid = b.rowid
		LIMIT 1
	`)
	if err != nil {
		return fmt.Errorf("FTS index corrupted: %w", err)
	}

	return nil
}

// RebuildFTS rebuilds the FTS index from the blocks table.
// This fixes corruption issues where FTS has references to deleted rows.
func (s *Store) RebuildFTS() error {
	if !s.enableFTS {
		return nil
	}

	_, err := s.db.Exec(`INSERT INTO blocks_fts(blocks_fts) VALUES('rebuild')`)
	if err != nil {
		return fmt.Errorf("failed to rebuild FTS index: %w", err)
	}

	return nil
}

// Ensure Store implements the storage interfaces
var (
	_ provider.VectorStore = (*Store)(nil)
	_ provider.Maintainer  = (*Store)(nil)
)
