package vectordb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// DefaultTable is the pgvector table used when none is configured.
const DefaultTable = "ragchat_chunks"

// PgxConn is the subset of *pgxpool.Pool the pgvector adapters use.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// ConnectPostgres opens a connection pool.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// PgvectorOpener binds a pgvector table to an embedding function.
type PgvectorOpener struct {
	conn   PgxConn
	table  string
	logger *zap.Logger
}

// NewPgvectorOpener creates an opener for table.
func NewPgvectorOpener(conn PgxConn, table string, logger *zap.Logger) *PgvectorOpener {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgvectorOpener{conn: conn, table: table, logger: logger}
}

// Open checks that the table exists.
func (o *PgvectorOpener) Open(ctx context.Context, embedder ports.EmbeddingService) (ports.VectorIndex, error) {
	var exists bool
	err := o.conn.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)", o.table).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("looking up table %s: %w", o.table, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: table %s", ErrIndexNotFound, o.table)
	}
	o.logger.Info("index opened", zap.String("table", o.table))
	return &PgvectorIndex{conn: o.conn, table: o.table, embedder: embedder}, nil
}

// PgvectorIndex queries a pgvector table by cosine distance.
type PgvectorIndex struct {
	conn     PgxConn
	table    string
	embedder ports.EmbeddingService
}

// Retrieve embeds the question and returns the topK nearest rows.
func (i *PgvectorIndex) Retrieve(ctx context.Context, question string, topK int) ([]entities.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	emb, err := i.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	sql := fmt.Sprintf(`SELECT id, document_id, content, source, chunk_index, 1 - (embedding <=> $1) AS score
		FROM %s ORDER BY embedding <=> $1 LIMIT $2`, pgx.Identifier{i.table}.Sanitize())
	rows, err := i.conn.Query(ctx, sql, pgvector.NewVector(emb), topK)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", i.table, err)
	}
	defer rows.Close()

	var results []entities.QueryResult
	for rows.Next() {
		var r entities.QueryResult
		err := rows.Scan(&r.Chunk.ID, &r.Chunk.DocumentID, &r.Chunk.Content, &r.Chunk.Source, &r.Chunk.Index, &r.Score)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.SourceDoc = r.Chunk.Source
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	return results, nil
}

// Close is a no-op; the pool belongs to the caller.
func (i *PgvectorIndex) Close() error { return nil }

// PgvectorWriter stores chunks into a pgvector table.
// The table is created on the first Store, sized to the first embedding.
type PgvectorWriter struct {
	conn   PgxConn
	table  string
	drop   bool
	logger *zap.Logger

	mu     sync.Mutex
	ready  bool
	stored int
}

// NewPgvectorWriter creates a writer. With drop set, an existing table is replaced.
func NewPgvectorWriter(conn PgxConn, table string, drop bool, logger *zap.Logger) *PgvectorWriter {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgvectorWriter{conn: conn, table: table, drop: drop, logger: logger}
}

func (w *PgvectorWriter) ensureSchema(ctx context.Context, dims int) error {
	ident := pgx.Identifier{w.table}.Sanitize()
	stmts := []string{"CREATE EXTENSION IF NOT EXISTS vector"}
	if w.drop {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+ident)
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id text PRIMARY KEY,
		document_id text NOT NULL,
		content text NOT NULL,
		source text NOT NULL DEFAULT '',
		chunk_index integer NOT NULL,
		embedding vector(%d) NOT NULL
	)`, ident, dims))

	for _, s := range stmts {
		if _, err := w.conn.Exec(ctx, s); err != nil {
			return fmt.Errorf("preparing table %s: %w", w.table, err)
		}
	}
	return nil
}

// Store upserts chunks in one batch.
func (w *PgvectorWriter) Store(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.ready {
		if len(chunks[0].Embedding) == 0 {
			return errors.New("first chunk has no embedding")
		}
		if err := w.ensureSchema(ctx, len(chunks[0].Embedding)); err != nil {
			return err
		}
		w.ready = true
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, document_id, content, source, chunk_index, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET content = EXCLUDED.content, source = EXCLUDED.source,
			chunk_index = EXCLUDED.chunk_index, embedding = EXCLUDED.embedding`,
		pgx.Identifier{w.table}.Sanitize())

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(sql, c.ID, c.DocumentID, c.Content, c.Source, c.Index, pgvector.NewVector(c.Embedding))
	}
	br := w.conn.SendBatch(ctx, batch)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("inserting chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}
	w.stored += len(chunks)
	return nil
}

// Save refreshes planner statistics; rows are already committed.
func (w *PgvectorWriter) Save(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.ready {
		return nil
	}
	if _, err := w.conn.Exec(ctx, "ANALYZE "+pgx.Identifier{w.table}.Sanitize()); err != nil {
		return fmt.Errorf("analyzing %s: %w", w.table, err)
	}
	w.logger.Info("index saved", zap.String("table", w.table), zap.Int("chunks", w.stored))
	return nil
}
