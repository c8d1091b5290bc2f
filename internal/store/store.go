package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/blevesearch/bleve"
	_ "github.com/lib/pq"

	"github.com/mohammad-safakhou/deepresearch/internal/pipeline"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Record is a persisted research run.
type Record struct {
	pipeline.ResearchState
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Stats summarises the stored history.
type Stats struct {
	Total           int `json:"total"`
	Done            int `json:"done"`
	Failed          int `json:"failed"`
	CreatedThisWeek int `json:"created_this_week"`
}

// indexDoc is what gets indexed for full-text search over records.
type indexDoc struct {
	Query       string `json:"query"`
	FinalAnswer string `json:"final_answer"`
}

// Store persists research records in Postgres and keeps an in-memory bleve
// index over them for text search. The index is rebuilt from the database on
// startup and kept in sync on Save and Delete.
type Store struct {
	DB     *sql.DB
	logger *log.Logger

	mu    sync.RWMutex
	index bleve.Index
}

// New constructs the Store from DATABASE_URL or the POSTGRES_* environment.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, err
	}
	s := &Store{
		DB:     db,
		index:  index,
		logger: log.New(log.Writer(), "[STORE] ", log.LstdFlags),
	}
	if err := s.rebuildIndex(ctx); err != nil {
		return nil, fmt.Errorf("rebuilding search index: %w", err)
	}
	return s, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// Save upserts the final state of a run together with request metadata.
func (s *Store) Save(ctx context.Context, state pipeline.ResearchState, metadata map[string]interface{}) error {
	plan, err := json.Marshal(orEmptySlice(state.Plan))
	if err != nil {
		return err
	}
	evidence, err := json.Marshal(state.Evidence)
	if err != nil {
		return err
	}
	gaps, err := json.Marshal(orEmptySlice(state.Gaps))
	if err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	if string(evidence) == "null" {
		evidence = []byte("[]")
	}

	var errStage, errMessage sql.NullString
	if state.Error != nil {
		errStage = sql.NullString{String: state.Error.Stage, Valid: true}
		errMessage = sql.NullString{String: state.Error.Message, Valid: true}
	}

	_, err = s.DB.ExecContext(ctx, `
INSERT INTO research_records
  (id, query, plan, evidence, findings, critique, gaps, final_answer, stage, error_stage, error_message, grounding, metadata, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now(), now())
ON CONFLICT (id) DO UPDATE SET
  plan=EXCLUDED.plan, evidence=EXCLUDED.evidence, findings=EXCLUDED.findings,
  critique=EXCLUDED.critique, gaps=EXCLUDED.gaps, final_answer=EXCLUDED.final_answer,
  stage=EXCLUDED.stage, error_stage=EXCLUDED.error_stage, error_message=EXCLUDED.error_message,
  grounding=EXCLUDED.grounding, metadata=EXCLUDED.metadata, updated_at=now()`,
		state.ID, state.Query, plan, evidence, state.Findings, state.Critique, gaps,
		state.FinalAnswer, string(state.Stage), errStage, errMessage, state.Grounding, meta)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Index(state.ID, indexDoc{Query: state.Query, FinalAnswer: state.FinalAnswer})
}

// Get returns a single record by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, query, plan, evidence, findings, critique, gaps, final_answer,
       stage, error_stage, error_message, grounding, metadata, created_at, updated_at
FROM research_records WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

// List returns records newest-first with skip/limit paging.
func (s *Store) List(ctx context.Context, skip, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	if skip < 0 {
		skip = 0
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, query, plan, evidence, findings, critique, gaps, final_answer,
       stage, error_stage, error_message, grounding, metadata, created_at, updated_at
FROM research_records ORDER BY created_at DESC OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search runs a full-text query over stored records and returns matches in
// relevance order.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	s.mu.RLock()
	query := bleve.NewQueryStringQuery(q)
	searchReq := bleve.NewSearchRequestOptions(query, limit, 0, false)
	res, err := s.index.Search(searchReq)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec, err := s.Get(ctx, hit.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes a record, or returns ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM research_records WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Delete(id)
}

// Stats reports history-wide counters.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.DB.QueryRowContext(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE stage='done'),
       count(*) FILTER (WHERE stage='failed'),
       count(*) FILTER (WHERE created_at > now() - interval '7 days')
FROM research_records`).Scan(&st.Total, &st.Done, &st.Failed, &st.CreatedThisWeek)
	return st, err
}

// Close releases the database handle and the search index.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.DB.Close()
}

// rebuildIndex reloads the bleve index from Postgres. The index is memory
// only, so every process start walks the table once.
func (s *Store) rebuildIndex(ctx context.Context) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, query, final_answer FROM research_records`)
	if err != nil {
		return err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var id, query, answer string
		if err := rows.Scan(&id, &query, &answer); err != nil {
			return err
		}
		if err := s.index.Index(id, indexDoc{Query: query, FinalAnswer: answer}); err != nil {
			return err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.logger.Printf("search index rebuilt with %d records", count)
	return nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scannable) (Record, error) {
	var rec Record
	var plan, evidence, gaps, meta []byte
	var errStage, errMessage sql.NullString
	var stage string
	err := row.Scan(&rec.ID, &rec.Query, &plan, &evidence, &rec.Findings, &rec.Critique,
		&gaps, &rec.FinalAnswer, &stage, &errStage, &errMessage, &rec.Grounding,
		&meta, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Stage = pipeline.Stage(stage)
	if err := json.Unmarshal(plan, &rec.Plan); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(evidence, &rec.Evidence); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(gaps, &rec.Gaps); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return Record{}, err
	}
	if errStage.Valid {
		rec.Error = &pipeline.RunError{Stage: errStage.String, Message: errMessage.String}
	}
	return rec, nil
}

func orEmptySlice(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
