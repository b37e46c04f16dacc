package artifacts

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store keeps rendered audio files on disk under a single directory and
// deletes them after a TTL. Artifacts are ephemeral: completed episodes keep
// only the URL, and a missing file after expiry is expected.
type Store struct {
	dir string
	ttl time.Duration
}

// NewStore creates the directory if needed.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Store{dir: dir, ttl: ttl}, nil
}

// Dir returns the directory artifacts are written to.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes data under a fresh name and returns the file name.
func (s *Store) Put(data []byte, ext string) (string, error) {
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return name, nil
}

// Sweep removes artifacts older than the TTL and returns how many were
// deleted.
func (s *Store) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("artifacts: sweep failed to read %s: %v", s.dir, err)
		return 0
	}

	cutoff := time.Now().Add(-s.ttl)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
				log.Printf("artifacts: failed to remove %s: %v", e.Name(), err)
				continue
			}
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on a ticker until ctx is cancelled.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Sweep(); n > 0 {
					log.Printf("artifacts: swept %d expired files", n)
				}
			}
		}
	}()
}
