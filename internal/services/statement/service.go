// Package statement registers uploaded statements, runs the parser on them and
// records the outcome.
package statement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/statements-tracker/constants"
	"github.com/joseph-ayodele/statements-tracker/internal/async"
	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
	"github.com/joseph-ayodele/statements-tracker/internal/ingest"
	"github.com/joseph-ayodele/statements-tracker/internal/memory"
	"github.com/joseph-ayodele/statements-tracker/internal/repository"
)

// Repository is the part of repository.Store the service needs.
type Repository interface {
	CreateStatement(ctx context.Context, st repository.Statement) (repository.Statement, error)
	FindStatementByHash(ctx context.Context, userID, hash string) (repository.Statement, error)
	RecordResult(ctx context.Context, res entity.ParseResult) error
}

// Parser runs one extraction.
type Parser interface {
	Parse(ctx context.Context, data []byte, uc entity.UserContext) entity.ParseResult
}

// Request is one statement to parse.
type Request struct {
	UserID   string
	Filename string
	Data     []byte
	Force    bool // parse again even if the same bytes were parsed before
}

// Outcome is what happened to a request. Result is zero when Deduplicated.
type Outcome struct {
	Statement    repository.Statement
	Result       entity.ParseResult
	Deduplicated bool
}

type Service struct {
	repo   Repository
	parser Parser
	memory memory.Store
	logger *slog.Logger
}

var _ async.Processor = (*Service)(nil)

func NewService(repo Repository, parser Parser, mem memory.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, parser: parser, memory: mem, logger: logger}
}

// ParseBytes registers the statement unless the user already uploaded the same
// bytes, then parses it and stores the result.
func (s *Service) ParseBytes(ctx context.Context, req Request) (Outcome, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return Outcome{}, common.NewAppError("INVALID_USER", "user id is required", common.ErrInvalidInput)
	}
	if len(req.Data) == 0 {
		return Outcome{}, common.NewAppError("EMPTY_DOCUMENT", "statement is empty", common.ErrInvalidInput)
	}
	logger := common.LoggerFrom(common.WithUserID(ctx, userID), s.logger)
	hash := ingest.Hash(req.Data)

	st, err := s.repo.FindStatementByHash(ctx, userID, hash)
	switch {
	case err == nil && !req.Force:
		logger.Info("statement.deduplicated", "statement_id", st.ID, "filename", req.Filename)
		return Outcome{Statement: st, Deduplicated: true}, nil
	case err == nil:
		logger.Info("statement.reparse", "statement_id", st.ID)
	case errors.Is(err, common.ErrNotFound):
		st, err = s.repo.CreateStatement(ctx, repository.Statement{
			UserID:           userID,
			OriginalFilename: req.Filename,
			ContentHash:      hash,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("register statement: %w", err)
		}
		logger.Info("statement.registered", "statement_id", st.ID, "filename", req.Filename)
	default:
		return Outcome{}, fmt.Errorf("lookup statement: %w", err)
	}

	snap := s.snapshot(ctx, userID, logger)
	res := s.parser.Parse(ctx, req.Data, entity.UserContext{UserID: userID, StatementID: st.ID, Memory: snap})

	// the run outcome is recorded even when the caller gave up on it
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.repo.RecordResult(rctx, res); err != nil {
		return Outcome{Statement: st, Result: res}, fmt.Errorf("record result: %w", err)
	}
	st.Status = string(res.Status)
	st.Message = res.Message
	st.RunID = res.RunID
	st.SchemaVariant = res.SchemaVariant
	st.SchemaConfidence = res.SchemaConfidence
	st.TransactionCount = res.TransactionCount
	return Outcome{Statement: st, Result: res}, nil
}

func (s *Service) snapshot(ctx context.Context, userID string, logger *slog.Logger) entity.MemorySnapshot {
	if s.memory == nil {
		return entity.MemorySnapshot{}
	}
	snap, err := s.memory.Snapshot(ctx, userID)
	if err != nil {
		logger.Warn("statement.memory.unavailable", "error", err)
		return entity.MemorySnapshot{}
	}
	return snap
}

// ParseFile reads path and parses it for userID.
func (s *Service) ParseFile(ctx context.Context, path, userID string, force bool) (Outcome, error) {
	f, err := ingest.ReadFile(path)
	if err != nil {
		s.logger.Error("failed to read statement", "path", path, "error", err)
		return Outcome{}, common.NewAppError("UNREADABLE", "cannot read "+path, fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	return s.ParseBytes(ctx, Request{UserID: userID, Filename: f.Name, Data: f.Data, Force: force})
}

// Process handles a queued inbox file. A run that ends in status error is
// reported as an error so the worker logs it.
func (s *Service) Process(ctx context.Context, job async.Job) error {
	out, err := s.ParseFile(ctx, job.Path, job.UserID, job.Force)
	if err != nil {
		return err
	}
	if !out.Deduplicated && out.Result.Status == constants.RunStatusError {
		return fmt.Errorf("statement %d: %s", out.Statement.ID, out.Result.Message)
	}
	return nil
}
