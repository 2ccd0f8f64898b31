package logstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	configName         = "config"
	configType         = "toml"
	logPathKey         = "log.path"
	sessionsPathKey    = "sessions.path"
	rotateBytesKey     = "log.rotate_bytes"
	configDir          = ".agentchat"
	logFileName        = "conversations.jsonl"
	sessionsFileName   = "sessions.json"
	archivePrefix      = "conversations-"
	archiveSuffix      = ".jsonl"
	archiveTimeLayout  = "20060102T150405.000000000"
	defaultRotateBytes = 50 * 1024 * 1024
	storeFileMode      = 0o600
	storeDirMode       = 0o700
	tempFilePattern    = ".sessions-*.json.tmp"

	// maxLineBytes bounds a single log line during read-back. Content is
	// practically capped by the producer well below this.
	maxLineBytes = 16 * 1024 * 1024
)

// Store is the file-backed LogStore: an append-only JSON Lines conversation
// log plus a JSON session metadata document, rotated by size.
type Store struct {
	logPath      string
	sessionsPath string
	rotateBytes  int64
	logger       *zap.Logger
	mu           *sync.RWMutex
	corruptLines atomic.Int64
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var _ ports.LogStore = (*Store)(nil)

func New(cfg *viper.Viper, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		cfg = viper.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	defaultDir := filepath.Join(homeDir, configDir)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(defaultDir)
	cfg.SetDefault(logPathKey, filepath.Join(defaultDir, logFileName))
	cfg.SetDefault(sessionsPathKey, filepath.Join(defaultDir, sessionsFileName))
	cfg.SetDefault(rotateBytesKey, defaultRotateBytes)

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	logPath, err := normalizePath(cfg.GetString(logPathKey))
	if err != nil {
		return nil, err
	}
	sessionsPath, err := normalizePath(cfg.GetString(sessionsPathKey))
	if err != nil {
		return nil, err
	}

	rotateBytes := cfg.GetInt64(rotateBytesKey)
	if rotateBytes <= 0 {
		rotateBytes = defaultRotateBytes
	}

	return &Store{
		logPath:      logPath,
		sessionsPath: sessionsPath,
		rotateBytes:  rotateBytes,
		logger:       logger,
		mu:           lockForPath(logPath),
	}, nil
}

func (s *Store) EnsureInitialized(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range []string{filepath.Dir(s.logPath), filepath.Dir(s.sessionsPath)} {
		if err := os.MkdirAll(dir, storeDirMode); err != nil {
			return fmt.Errorf("%w: create log directory %s: %v", domain.ErrStorageUnavailable, dir, err)
		}
	}

	file, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, storeFileMode)
	if err != nil {
		return fmt.Errorf("%w: create log file: %v", domain.ErrStorageUnavailable, err)
	}

	return file.Close()
}

// AppendEntries writes the whole batch with one write call so that either
// the batch becomes visible or, on a crash mid-write, only a truncated tail
// remains. Rotation is checked before the append, never mid-batch.
func (s *Store) AppendEntries(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		line, err := json.Marshal(toEntrySchema(entry))
		if err != nil {
			return fmt.Errorf("encode log entry %s: %w", entry.MessageID, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateIfNeededLocked(); err != nil {
		return err
	}

	file, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, storeFileMode)
	if err != nil {
		return fmt.Errorf("%w: open log file: %v", domain.ErrWriteFailure, err)
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		_ = file.Close()
		return fmt.Errorf("%w: append log batch: %v", domain.ErrWriteFailure, err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: close log file: %v", domain.ErrWriteFailure, err)
	}

	return nil
}

func (s *Store) rotateIfNeededLocked() error {
	info, err := os.Stat(s.logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat log file: %w", err)
	}

	if info.Size() < s.rotateBytes {
		return nil
	}

	archiveName := archivePrefix + time.Now().UTC().Format(archiveTimeLayout) + archiveSuffix
	archivePath := filepath.Join(filepath.Dir(s.logPath), archiveName)

	if err := os.Rename(s.logPath, archivePath); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	file, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, storeFileMode)
	if err != nil {
		return fmt.Errorf("recreate log file after rotation: %w", err)
	}

	s.logger.Info("rotated conversation log",
		zap.String("archive", archiveName),
		zap.Int64("size_bytes", info.Size()),
	)

	return file.Close()
}

// ReadAll returns the entries of the current main file in file order.
// Archived files are out of live-query scope; use ReadArchive for explicit
// direct reads.
func (s *Store) ReadAll(ctx context.Context) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanFile(s.logPath)
}

// ListArchives returns the base names of rotated log files, oldest first.
func (s *Store) ListArchives(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.logPath), archivePrefix+"*"+archiveSuffix))
	if err != nil {
		return nil, fmt.Errorf("list archive files: %w", err)
	}

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, filepath.Base(match))
	}
	sort.Strings(names)

	return names, nil
}

// ReadArchive reads one rotated file by its base name.
func (s *Store) ReadArchive(ctx context.Context, name string) ([]domain.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name != filepath.Base(name) || filepath.Ext(name) != archiveSuffix {
		return nil, fmt.Errorf("%w: invalid archive name %q", domain.ErrInvalidInput, name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.scanFile(filepath.Join(filepath.Dir(s.logPath), name))
}

func (s *Store) scanFile(path string) ([]domain.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []domain.Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var decoded entrySchema
		if err := json.Unmarshal(line, &decoded); err != nil {
			s.corruptLines.Add(1)
			s.logger.Warn("skipping corrupt log line",
				zap.String("file", filepath.Base(path)),
				zap.Error(err),
			)
			continue
		}

		entries = append(entries, fromEntrySchema(decoded))
	}

	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scan log file: %w", err)
	}

	return entries, nil
}

// CorruptLines reports how many unparseable lines have been skipped since
// this store was opened.
func (s *Store) CorruptLines() int64 {
	return s.corruptLines.Load()
}

func (s *Store) LoadSessions(ctx context.Context) (map[string]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.sessionsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]domain.Session{}, nil
		}
		return nil, fmt.Errorf("read sessions file: %w", err)
	}

	var decoded []sessionSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode sessions file: %w", err)
	}

	sessions := make(map[string]domain.Session, len(decoded))
	for _, entry := range decoded {
		sessions[entry.SessionID] = fromSessionSchema(entry)
	}

	return sessions, nil
}

// SaveSessions rewrites the whole session document atomically: encode to a
// temp file in the same directory, then rename over the target.
func (s *Store) SaveSessions(ctx context.Context, sessions map[string]domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	encoded := make([]sessionSchema, 0, len(sessions))
	for _, session := range sessions {
		encoded = append(encoded, toSessionSchema(session))
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].StartedAt != encoded[j].StartedAt {
			return encoded[i].StartedAt < encoded[j].StartedAt
		}
		return encoded[i].SessionID < encoded[j].SessionID
	})

	data, err := json.MarshalIndent(encoded, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sessions file: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.sessionsPath), storeDirMode); err != nil {
		return fmt.Errorf("%w: create sessions directory: %v", domain.ErrWriteFailure, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(s.sessionsPath), tempFilePattern)
	if err != nil {
		return fmt.Errorf("%w: create temp sessions file: %v", domain.ErrWriteFailure, err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("%w: write temp sessions file: %v", domain.ErrWriteFailure, err)
	}

	if err := tempFile.Chmod(storeFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("%w: chmod temp sessions file: %v", domain.ErrWriteFailure, err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: close temp sessions file: %v", domain.ErrWriteFailure, err)
	}

	if err := os.Rename(tempName, s.sessionsPath); err != nil {
		return fmt.Errorf("%w: replace sessions file: %v", domain.ErrWriteFailure, err)
	}

	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("storage path is empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve storage path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}
