// Package memstore implements the memory store responsibility of spec
// §4.3: append-only persistence of conversation rows plus full persistence
// of MemTree node state, rebuilding the in-memory tree on startup. It
// reuses the teacher's modernc.org/sqlite + database/sql idiom and
// float32-as-bytes embedding encoding from
// internal/memory/backend/sqlitevec/backend.go, applied to the
// conversations/tree_nodes schema spec §3 and §4.2 describe instead of the
// teacher's flat memories table.
package memstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"finch/internal/embedding"
	"finch/internal/memtree"
	"finch/pkg/models"
)

// Store persists conversation rows and MemTree node state in a single
// SQLite database, and owns the in-memory Tree backing query/recall.
type Store struct {
	db   *sql.DB
	tree *memtree.Tree
	eng  embedding.Provider

	classifier Classifier
}

// Config configures a Store.
type Config struct {
	Path       string // ":memory:" for ephemeral stores (tests)
	Dimension  int
	Branching  int
	MaxDepth   int
	Engine     embedding.Provider
	Classifier Classifier
}

// Open opens (or creates) the database at cfg.Path, applies schema
// migrations, and rebuilds the in-memory MemTree from persisted
// tree_nodes rows (spec §4.3: "rebuild the in-memory MemTree on
// startup").
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Branching == 0 {
		cfg.Branching = memtree.DefaultBranchingFactor
	}
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = memtree.DefaultMaxDepth
	}
	if cfg.Engine == nil {
		cfg.Engine = embedding.NewTfIdfEmbedding()
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = cfg.Engine.Dimension()
	}
	if cfg.Dimension != cfg.Engine.Dimension() {
		return nil, fmt.Errorf("memstore: configured dimension %d does not match engine %q dimension %d",
			cfg.Dimension, cfg.Engine.Name(), cfg.Engine.Dimension())
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewImportanceClassifier()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("memstore: open %s: %w", cfg.Path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memstore: enable WAL: %w", err)
	}

	s := &Store{db: db, eng: cfg.Engine, classifier: cfg.Classifier}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	nodes, err := s.loadAllNodes(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}

	if len(nodes) == 0 {
		s.tree = memtree.NewWithOptions(cfg.Dimension, cfg.Branching, cfg.MaxDepth, s.persistTouched)
	} else {
		tree, err := memtree.LoadSnapshot(cfg.Dimension, cfg.Branching, cfg.MaxDepth, nodes, s.persistTouched)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("memstore: rebuilding tree from %d persisted nodes: %w", len(nodes), err)
		}
		s.tree = tree
	}

	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tokens INTEGER,
			model TEXT,
			session_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations(timestamp)`,
		`CREATE TABLE IF NOT EXISTS tree_nodes (
			id INTEGER PRIMARY KEY,
			parent_id INTEGER REFERENCES tree_nodes(id),
			text TEXT NOT NULL,
			embedding BLOB NOT NULL,
			level INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			importance INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tree_children (
			parent_id INTEGER NOT NULL,
			child_id INTEGER NOT NULL,
			PRIMARY KEY (parent_id, child_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("memstore: migration %q: %w", firstWords(stmt, 4), err)
		}
	}
	return nil
}

func firstWords(s string, n int) string {
	var out []byte
	words := 0
	for i := 0; i < len(s) && words < n; i++ {
		out = append(out, s[i])
		if s[i] == ' ' {
			words++
		}
	}
	return string(out)
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Tree exposes the in-memory MemTree for direct inspection (e.g. the
// `finch memory stats` CLI surface).
func (s *Store) Tree() *memtree.Tree { return s.tree }

func encodeEmbedding(emb []float32) []byte {
	data := make([]byte, len(emb)*4)
	for i, f := range emb {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

// loadAllNodes reads every persisted tree_nodes row plus its children
// list, in id order, for startup tree reconstruction.
func (s *Store) loadAllNodes(ctx context.Context) ([]*models.TreeNode, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, parent_id, text, embedding, level, created_at, importance FROM tree_nodes ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("memstore: loading tree nodes: %w", err)
	}
	defer rows.Close()

	byID := make(map[uint64]*models.TreeNode)
	var order []uint64
	for rows.Next() {
		var (
			id, level, importance int64
			parentID              sql.NullInt64
			text                  string
			embBlob               []byte
			createdAt             time.Time
		)
		if err := rows.Scan(&id, &parentID, &text, &embBlob, &level, &createdAt, &importance); err != nil {
			return nil, fmt.Errorf("memstore: scanning tree node: %w", err)
		}
		node := &models.TreeNode{
			ID:         uint64(id),
			Text:       text,
			Embedding:  decodeEmbedding(embBlob),
			Level:      int(level),
			CreatedAt:  createdAt,
			Importance: models.Importance(importance),
		}
		if parentID.Valid {
			pid := uint64(parentID.Int64)
			node.ParentID = &pid
		}
		byID[node.ID] = node
		order = append(order, node.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	childRows, err := s.db.QueryContext(ctx, `SELECT parent_id, child_id FROM tree_children ORDER BY parent_id ASC, child_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("memstore: loading tree children: %w", err)
	}
	defer childRows.Close()
	for childRows.Next() {
		var parentID, childID int64
		if err := childRows.Scan(&parentID, &childID); err != nil {
			return nil, fmt.Errorf("memstore: scanning tree child: %w", err)
		}
		if p, ok := byID[uint64(parentID)]; ok {
			p.Children = append(p.Children, uint64(childID))
		}
	}
	if err := childRows.Err(); err != nil {
		return nil, err
	}

	out := make([]*models.TreeNode, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// persistTouched writes the given nodes (and their child lists) inside a
// single transaction, ordered by id ascending by the caller (memtree.Tree
// already guarantees this), satisfying spec §4.2's persistence contract:
// "the whole set of modified nodes ... is serialized ... in a single
// transaction, ordered by id ascending so that self-referential parent
// foreign keys validate."
func (s *Store) persistTouched(nodes []*models.TreeNode) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memstore: begin tx: %w", err)
	}
	defer tx.Rollback()

	upsertNode, err := tx.PrepareContext(ctx, `
		INSERT INTO tree_nodes (id, parent_id, text, embedding, level, created_at, importance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id=excluded.parent_id, text=excluded.text, embedding=excluded.embedding,
			level=excluded.level, importance=excluded.importance
	`)
	if err != nil {
		return fmt.Errorf("memstore: prepare node upsert: %w", err)
	}
	defer upsertNode.Close()

	clearChildren, err := tx.PrepareContext(ctx, `DELETE FROM tree_children WHERE parent_id = ?`)
	if err != nil {
		return fmt.Errorf("memstore: prepare child clear: %w", err)
	}
	defer clearChildren.Close()

	insertChild, err := tx.PrepareContext(ctx, `INSERT INTO tree_children (parent_id, child_id) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("memstore: prepare child insert: %w", err)
	}
	defer insertChild.Close()

	for _, n := range nodes {
		var parentID any
		if n.ParentID != nil {
			parentID = int64(*n.ParentID)
		}
		if _, err := upsertNode.ExecContext(ctx, int64(n.ID), parentID, n.Text, encodeEmbedding(n.Embedding), n.Level, n.CreatedAt, int(n.Importance)); err != nil {
			return fmt.Errorf("memstore: upserting node %d: %w", n.ID, err)
		}
		if _, err := clearChildren.ExecContext(ctx, int64(n.ID)); err != nil {
			return fmt.Errorf("memstore: clearing children of %d: %w", n.ID, err)
		}
		for _, cid := range n.Children {
			if _, err := insertChild.ExecContext(ctx, int64(n.ID), int64(cid)); err != nil {
				return fmt.Errorf("memstore: linking child %d of %d: %w", cid, n.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memstore: commit: %w", err)
	}
	return nil
}

// InsertConversation appends a conversation row and, if the classifier
// deems the content worth indexing, embeds it and updates the MemTree
// (spec §4.3 insert_conversation).
func (s *Store) InsertConversation(ctx context.Context, role models.Role, content string, model, sessionID *string) (*models.ConversationRecord, error) {
	now := time.Now()
	rec := &models.ConversationRecord{
		ID:        uuid.NewString(),
		Timestamp: now,
		Role:      role,
		Content:   content,
		Model:     model,
		SessionID: sessionID,
		CreatedAt: now,
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, timestamp, role, content, tokens, model, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp, string(rec.Role), rec.Content, rec.Tokens, rec.Model, rec.SessionID, rec.CreatedAt); err != nil {
		return nil, fmt.Errorf("memstore: inserting conversation: %w", err)
	}

	importance, indexWorthy := s.classifier.Classify(content)
	if !indexWorthy {
		return rec, nil
	}

	emb, err := s.eng.Embed(ctx, content)
	if err != nil {
		return rec, fmt.Errorf("memstore: embedding conversation %s: %w", rec.ID, err)
	}
	if _, err := s.tree.Insert(content, emb, importance, now); err != nil {
		return rec, fmt.Errorf("memstore: indexing conversation %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Query embeds text and returns the k MemTree leaves most similar to it
// (spec §4.3 query).
func (s *Store) Query(ctx context.Context, text string, k int) ([]string, error) {
	emb, err := s.eng.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("memstore: embedding query: %w", err)
	}
	leaves := s.tree.Query(emb, k)
	out := make([]string, len(leaves))
	for i, l := range leaves {
		out[i] = l.Node.Text
	}
	return out, nil
}

// Recent returns the n most recent conversation rows, newest first (spec
// §4.3 recent).
func (s *Store) Recent(ctx context.Context, n int) ([]*models.ConversationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, role, content, tokens, model, session_id, created_at
		FROM conversations ORDER BY timestamp DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("memstore: querying recent conversations: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationRecord
	for rows.Next() {
		rec := &models.ConversationRecord{}
		var role string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &role, &rec.Content, &rec.Tokens, &rec.Model, &rec.SessionID, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("memstore: scanning conversation: %w", err)
		}
		rec.Role = models.Role(role)
		out = append(out, rec)
	}
	return out, rows.Err()
}
