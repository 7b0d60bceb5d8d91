// Package shift manages per-shift SQLite database files and the pointer to
// the one currently in use.
package shift

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"room-status-backend/config"
)

// DefaultDSN is used when no shift is active.
const DefaultDSN = "clinic.db"

const tagLayout = "20060102_150405"

// Archiver copies an ended shift file somewhere durable and returns where.
type Archiver interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Ended describes a shift that has just been closed.
type Ended struct {
	Active   string // path the shift was recorded under
	Archived string // path after renaming
	Location string // archive location, empty when not uploaded
}

// Service tracks the active shift file.
type Service struct {
	baseDir    string
	activeFile string
	archiver   Archiver
	now        func() time.Time
	logger     *zap.Logger
}

// NewService creates the shift and pointer directories if needed. archiver may be nil.
func NewService(cfg config.ShiftConfig, archiver Archiver, logger *zap.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create shift dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.ActiveFile), 0o755); err != nil {
		return nil, fmt.Errorf("create active shift dir: %w", err)
	}
	return &Service{
		baseDir:    cfg.BaseDir,
		activeFile: cfg.ActiveFile,
		archiver:   archiver,
		now:        time.Now,
		logger:     logger,
	}, nil
}

// Active returns the path recorded in the pointer file, if any.
func (s *Service) Active() (string, bool, error) {
	raw, err := os.ReadFile(s.activeFile)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read active shift: %w", err)
	}
	path := strings.TrimSpace(string(raw))
	return path, path != "", nil
}

// ActiveDSN returns the active shift file or DefaultDSN.
func (s *Service) ActiveDSN() string {
	path, ok, err := s.Active()
	if err != nil {
		s.logger.Warn("falling back to default database", zap.Error(err))
		return DefaultDSN
	}
	if !ok {
		return DefaultDSN
	}
	return path
}

// ResolveDSN returns configured unless it is empty or DefaultDSN, in which
// case the active shift file is used.
func (s *Service) ResolveDSN(configured string) string {
	if configured != "" && configured != DefaultDSN {
		return configured
	}
	return s.ActiveDSN()
}

// Start records a new shift file as active. An active shift whose file
// exists is reused and created is false.
func (s *Service) Start() (path string, created bool, err error) {
	active, ok, err := s.Active()
	if err != nil {
		return "", false, err
	}
	if ok {
		if _, statErr := os.Stat(active); statErr == nil {
			return active, false, nil
		}
	}

	path = filepath.Join(s.baseDir, fmt.Sprintf("clinic_shift_%s.db", s.now().Format(tagLayout)))
	if err := os.WriteFile(s.activeFile, []byte(path), 0o644); err != nil {
		return "", false, fmt.Errorf("write active shift: %w", err)
	}
	s.logger.Info("shift started", zap.String("path", path))
	return path, true, nil
}

// End renames the active file to <stem>_ended_<tag><ext>, clears the
// pointer and uploads the renamed file when an archiver is set. ok is false
// when no shift was active.
func (s *Service) End(ctx context.Context) (Ended, bool, error) {
	active, ok, err := s.Active()
	if err != nil {
		return Ended{}, false, err
	}
	if !ok {
		return Ended{}, false, nil
	}

	ext := filepath.Ext(active)
	stem := strings.TrimSuffix(filepath.Base(active), ext)
	archived := filepath.Join(filepath.Dir(active), fmt.Sprintf("%s_ended_%s%s", stem, s.now().Format(tagLayout), ext))

	ended := Ended{Active: active, Archived: archived}
	if _, err := os.Stat(active); err == nil {
		if err := os.Rename(active, archived); err != nil {
			return Ended{}, false, fmt.Errorf("archive shift file: %w", err)
		}
	} else {
		ended.Archived = active
	}

	if err := os.Remove(s.activeFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Ended{}, false, fmt.Errorf("clear active shift: %w", err)
	}
	s.logger.Info("shift ended", zap.String("active", active), zap.String("archived", ended.Archived))

	if s.archiver != nil && ended.Archived != active {
		loc, err := s.archiver.Upload(ctx, ended.Archived)
		if err != nil {
			return ended, true, fmt.Errorf("upload ended shift: %w", err)
		}
		ended.Location = loc
		s.logger.Info("shift archived", zap.String("location", loc))
	}
	return ended, true, nil
}
