package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio/v2"

	"castbot/pkg/logx"
)

const (
	fileKeep    = 2000 // records kept by compaction
	fileCompact = 4000 // compact once the file holds this many
	fileRecent  = 200  // records cached for RecentPlays
)

// fileStore appends plays to <prefix>.plays.jsonl and compacts it to the newest
// fileKeep records once it reaches fileCompact.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	f      *os.File
	lines  int
	recent []Play // oldest first, at most fileRecent
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{log: log, path: filepath.Join(dir, base) + ".plays.jsonl"}
	plays, err := readPlays(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	s.lines = len(plays)
	s.recent = tail(plays, fileRecent)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	s.f = f
	return s, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendPlay(_ context.Context, p Play) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(p); err != nil {
		return err
	}
	s.lines++
	s.recent = append(s.recent, p)
	if len(s.recent) > fileRecent {
		s.recent = append(s.recent[:0:0], s.recent[len(s.recent)-fileRecent:]...)
	}
	if s.lines >= fileCompact {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("play history compact failed", logx.String("path", s.path), logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) RecentPlays(_ context.Context, limit int) ([]Play, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.recent) {
		limit = len(s.recent)
	}
	out := make([]Play, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

func (s *fileStore) compactLocked() error {
	plays, err := readPlays(s.path)
	if err != nil {
		return err
	}
	keep := tail(plays, fileKeep)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, p := range keep {
		if err := enc.Encode(p); err != nil {
			return err
		}
	}
	if err := renameio.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	// The old handle points at the replaced inode.
	_ = s.f.Close()
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		s.f = nil
		return err
	}
	s.f = f
	s.lines = len(keep)
	return nil
}

// readPlays decodes a JSON Lines file, skipping lines that do not parse.
func readPlays(path string) ([]Play, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Play
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var p Play
			if json.Unmarshal(line, &p) == nil {
				out = append(out, p)
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

func tail(plays []Play, n int) []Play {
	if len(plays) <= n {
		return plays
	}
	return append([]Play(nil), plays[len(plays)-n:]...)
}
