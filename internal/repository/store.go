package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

const (
	tableStatements   = "statements"
	tableTransactions = "transactions"
)

// StatementStatusPending is the status of a statement that was registered but
// not parsed yet.
const StatementStatusPending = "pending"

// Statement is one uploaded document and the summary of its last parse.
type Statement struct {
	ID               int64
	UserID           string
	OriginalFilename string
	ContentHash      string
	UploadedAt       time.Time
	Status           string
	Message          string
	RunID            string
	SchemaVariant    string
	SchemaConfidence float64
	TransactionCount int
	Trace            *entity.ParseTrace
	ParsedAt         *time.Time
}

var statementColumns = []string{
	"id", "user_id", "original_filename", "content_hash", "uploaded_at", "status", "message",
	"run_id", "schema_variant", "schema_confidence", "transaction_count", "trace", "parsed_at",
}

var transactionColumns = []string{
	"row_index", "page", "txn_date", "raw_date", "description", "amount", "direction",
	"balance", "evidence", "confidence", "needs_review", "flags", "raw",
}

// Store persists statements and their transactions with ent's SQL builder, on
// postgres or sqlite.
type Store struct {
	db     *DB
	sql    *entsql.DialectBuilder
	logger *slog.Logger
}

func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, sql: entsql.Dialect(db.Dialect), logger: logger}
}

// CreateStatement registers a document before it is parsed.
func (s *Store) CreateStatement(ctx context.Context, st Statement) (Statement, error) {
	if st.UploadedAt.IsZero() {
		st.UploadedAt = time.Now().UTC()
	}
	st.Status = StatementStatusPending

	ins := s.sql.Insert(tableStatements).
		Columns("user_id", "original_filename", "content_hash", "uploaded_at", "status").
		Values(st.UserID, st.OriginalFilename, st.ContentHash, st.UploadedAt, st.Status)
	id, err := s.insert(ctx, s.db.Driver, ins)
	if err != nil {
		s.logger.Error("failed to create statement", "user_id", st.UserID, "filename", st.OriginalFilename, "error", err)
		return Statement{}, fmt.Errorf("%w: create statement: %w", common.ErrDatabase, err)
	}
	st.ID = id
	return st, nil
}

// insert runs ins and returns the generated id.
func (s *Store) insert(ctx context.Context, conn dialect.ExecQuerier, ins *entsql.InsertBuilder) (int64, error) {
	if s.db.Dialect == dialect.Postgres {
		query, args := ins.Returning("id").Query()
		rows := &entsql.Rows{}
		if err := conn.Query(ctx, query, args, rows); err != nil {
			return 0, err
		}
		defer rows.Close()
		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return 0, err
			}
			return 0, sql.ErrNoRows
		}
		var id int64
		return id, rows.Scan(&id)
	}

	query, args := ins.Query()
	var res sql.Result
	if err := conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetStatement returns common.ErrNotFound when id is unknown.
func (s *Store) GetStatement(ctx context.Context, id int64) (Statement, error) {
	return s.one(ctx, entsql.EQ("id", id))
}

// FindStatementByHash finds a document the user already uploaded.
func (s *Store) FindStatementByHash(ctx context.Context, userID, hash string) (Statement, error) {
	return s.one(ctx, entsql.And(entsql.EQ("user_id", userID), entsql.EQ("content_hash", hash)))
}

func (s *Store) one(ctx context.Context, where *entsql.Predicate) (Statement, error) {
	sts, err := s.query(ctx, s.sql.Select(statementColumns...).
		From(s.sql.Table(tableStatements)).
		Where(where).
		Limit(1))
	if err != nil {
		return Statement{}, err
	}
	if len(sts) == 0 {
		return Statement{}, common.ErrNotFound
	}
	return sts[0], nil
}

// ListStatements returns the newest statements first; an empty userID lists
// everyone's.
func (s *Store) ListStatements(ctx context.Context, userID string, limit int) ([]Statement, error) {
	sel := s.sql.Select(statementColumns...).
		From(s.sql.Table(tableStatements)).
		OrderBy(entsql.Desc("uploaded_at"), entsql.Desc("id"))
	if userID != "" {
		sel = sel.Where(entsql.EQ("user_id", userID))
	}
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return s.query(ctx, sel)
}

// CountStatements is used by the health tooling.
func (s *Store) CountStatements(ctx context.Context) (int, error) {
	query, args := s.sql.Select(entsql.Count("*")).From(s.sql.Table(tableStatements)).Query()
	rows := &entsql.Rows{}
	if err := s.db.Driver.Query(ctx, query, args, rows); err != nil {
		return 0, fmt.Errorf("%w: count statements: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	var n int
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func (s *Store) query(ctx context.Context, sel *entsql.Selector) ([]Statement, error) {
	query, args := sel.Query()
	rows := &entsql.Rows{}
	if err := s.db.Driver.Query(ctx, query, args, rows); err != nil {
		s.logger.Error("failed to query statements", "error", err)
		return nil, fmt.Errorf("%w: query statements: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Statement
	for rows.Next() {
		var (
			st                 Statement
			uploaded, parsedAt nullTime
			trace              []byte
		)
		if err := rows.Scan(&st.ID, &st.UserID, &st.OriginalFilename, &st.ContentHash, &uploaded,
			&st.Status, &st.Message, &st.RunID, &st.SchemaVariant, &st.SchemaConfidence,
			&st.TransactionCount, &trace, &parsedAt); err != nil {
			return nil, fmt.Errorf("scan statement: %w", err)
		}
		st.UploadedAt = uploaded.Time
		st.ParsedAt = parsedAt.ptr()
		if len(trace) > 0 {
			var tr entity.ParseTrace
			if err := json.Unmarshal(trace, &tr); err != nil {
				return nil, fmt.Errorf("decode trace of statement %d: %w", st.ID, err)
			}
			st.Trace = &tr
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SaveTransactions replaces the rows of a statement and stores the trace, in
// one transaction. A re-parse of the same statement leaves no stale rows.
func (s *Store) SaveTransactions(ctx context.Context, statementID int64, txns []entity.Transaction, trace entity.ParseTrace) (err error) {
	start := time.Now()
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}

	tx, err := s.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				s.logger.Warn("rollback failed", "statement_id", statementID, "error", rerr)
			}
		}
	}()

	if err := s.exec(ctx, tx, s.sql.Delete(tableTransactions).Where(entsql.EQ("statement_id", statementID))); err != nil {
		return err
	}

	if len(txns) > 0 {
		ins := s.sql.Insert(tableTransactions).Columns(append([]string{"statement_id"}, transactionColumns...)...)
		for i, t := range txns {
			vals, err := transactionValues(i, t)
			if err != nil {
				return err
			}
			ins = ins.Values(append([]any{statementID}, vals...)...)
		}
		if err := s.exec(ctx, tx, ins); err != nil {
			return err
		}
	}

	upd := s.sql.Update(tableStatements).
		Set("trace", string(traceJSON)).
		Set("transaction_count", len(txns)).
		Set("parsed_at", time.Now().UTC()).
		Where(entsql.EQ("id", statementID))
	if err := s.exec(ctx, tx, upd); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrDatabase, err)
	}
	s.logger.Info("repository.transactions.saved",
		"statement_id", statementID,
		"rows", len(txns),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// RecordResult stores the run summary on the statement, whatever its status.
// A run that did not succeed also clears the rows of any earlier parse, in the
// same transaction.
func (s *Store) RecordResult(ctx context.Context, res entity.ParseResult) (err error) {
	traceJSON, err := json.Marshal(res.Trace)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	upd := s.sql.Update(tableStatements).
		Set("status", string(res.Status)).
		Set("message", res.Message).
		Set("run_id", res.RunID).
		Set("schema_variant", res.SchemaVariant).
		Set("schema_confidence", res.SchemaConfidence).
		Set("trace", string(traceJSON)).
		Where(entsql.EQ("id", res.StatementID))
	if res.Status == constants.RunStatusSuccess {
		return s.exec(ctx, s.db.Driver, upd)
	}

	tx, err := s.db.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				s.logger.Warn("rollback failed", "statement_id", res.StatementID, "error", rerr)
			}
		}
	}()

	if err := s.exec(ctx, tx, s.sql.Delete(tableTransactions).Where(entsql.EQ("statement_id", res.StatementID))); err != nil {
		return err
	}
	if err := s.exec(ctx, tx, upd.Set("transaction_count", 0)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", common.ErrDatabase, err)
	}
	return nil
}

// Transactions returns the stored rows of a statement in row order.
func (s *Store) Transactions(ctx context.Context, statementID int64) ([]entity.Transaction, error) {
	query, args := s.sql.Select(transactionColumns...).
		From(s.sql.Table(tableTransactions)).
		Where(entsql.EQ("statement_id", statementID)).
		OrderBy("row_index").
		Query()
	rows := &entsql.Rows{}
	if err := s.db.Driver.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("%w: query transactions: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.Transaction
	for rows.Next() {
		var (
			t        entity.Transaction
			date     nullTime
			dir, ev  string
			flags    []byte
			raw      sql.NullString
			amount   decimal.Decimal
			balance  decimal.NullDecimal
			needsRev bool
		)
		if err := rows.Scan(&t.Row, &t.Page, &date, &t.RawDate, &t.Description, &amount, &dir,
			&balance, &ev, &t.Confidence, &needsRev, &flags, &raw); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount, t.Balance = amount, balance
		t.Direction, t.Evidence = entity.Direction(dir), entity.Evidence(ev)
		t.NeedsReview = needsRev
		if date.Valid {
			t.Date, t.DateResolved = date.Time.UTC(), true
		}
		if len(flags) > 0 {
			if err := json.Unmarshal(flags, &t.Flags); err != nil {
				return nil, fmt.Errorf("decode flags: %w", err)
			}
		}
		t.Raw = raw.String
		out = append(out, t)
	}
	return out, rows.Err()
}

type querier interface {
	Query() (string, []any)
}

func (s *Store) exec(ctx context.Context, conn dialect.ExecQuerier, q querier) error {
	query, args := q.Query()
	if err := conn.Exec(ctx, query, args, nil); err != nil {
		s.logger.Error("statement failed", "error", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return nil
}

func transactionValues(row int, t entity.Transaction) ([]any, error) {
	flags := t.Flags
	if flags == nil {
		flags = []string{}
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return nil, err
	}
	var date, raw any
	if t.Raw != "" {
		raw = t.Raw
	}
	if iso := t.ISODate(); iso != "" {
		date = iso
	}
	return []any{
		row, t.Page, date, t.RawDate, t.Description, t.Amount, string(t.Direction),
		t.Balance, string(t.Evidence), t.Confidence, t.NeedsReview, string(flagsJSON), raw,
	}, nil
}

// IsNotFound reports a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
