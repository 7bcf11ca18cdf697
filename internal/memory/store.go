// Package memory serves per-user context snapshots (known merchants and layout
// hints) to parse runs. A run only ever sees a copy.
package memory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/joseph-ayodele/statements-tracker/internal/common"
	"github.com/joseph-ayodele/statements-tracker/internal/entity"
)

// Store hands out read-only snapshots.
type Store interface {
	Snapshot(ctx context.Context, userID string) (entity.MemorySnapshot, error)
}

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// FileStore keeps one TOML file per user: <dir>/<user_id>.toml.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger}
}

func (s *FileStore) path(userID string) (string, error) {
	if !userIDPattern.MatchString(userID) || strings.Trim(userID, ".") == "" {
		return "", common.NewAppError("INVALID_USER", "user id "+userID+" is not usable as a file name", common.ErrInvalidInput)
	}
	return filepath.Join(s.dir, userID+".toml"), nil
}

// Snapshot reads the user's file. A user without a file gets an empty snapshot.
func (s *FileStore) Snapshot(ctx context.Context, userID string) (entity.MemorySnapshot, error) {
	if err := ctx.Err(); err != nil {
		return entity.MemorySnapshot{}, err
	}
	p, err := s.path(userID)
	if err != nil {
		return entity.MemorySnapshot{}, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(p)
	s.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("memory.snapshot.empty", "user_id", userID)
		return entity.MemorySnapshot{}, nil
	}
	if err != nil {
		return entity.MemorySnapshot{}, fmt.Errorf("read memory: %w", err)
	}

	var snap entity.MemorySnapshot
	if err := toml.Unmarshal(data, &snap); err != nil {
		return entity.MemorySnapshot{}, fmt.Errorf("decode memory %s: %w", p, err)
	}
	snap.KnownMerchants = clean(snap.KnownMerchants)
	snap.PriorLayoutHints = clean(snap.PriorLayoutHints)

	s.logger.Debug("memory.snapshot.ok",
		"user_id", userID,
		"merchants", len(snap.KnownMerchants),
		"hints", len(snap.PriorLayoutHints),
	)
	return snap, nil
}

// Save replaces the user's file. Parse runs never call it.
func (s *FileStore) Save(ctx context.Context, userID string, snap entity.MemorySnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(userID)
	if err != nil {
		return err
	}
	snap.KnownMerchants = clean(snap.KnownMerchants)
	snap.PriorLayoutHints = clean(snap.PriorLayoutHints)

	data, err := toml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return os.Rename(tmp, p)
}

// clean trims, drops blanks and case-insensitive duplicates, keeping first-seen order.
func clean(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		key := strings.ToLower(v)
		if v == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return slices.Clip(out)
}
