package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keywordoor/keywordoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// localWriter implements Writer on a local directory.
type localWriter struct {
	log  logrus.FieldLogger
	root string
}

// Ensure interface compliance.
var _ Writer = (*localWriter)(nil)

// NewLocalWriter creates a Writer rooted at the configured directory.
func NewLocalWriter(
	log logrus.FieldLogger,
	cfg *config.LocalArchiveConfig,
) (Writer, error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	return &localWriter{
		log:  log.WithField("component", "archive-local"),
		root: cfg.Path,
	}, nil
}

// Preflight verifies the archive directory is writable.
func (l *localWriter) Preflight(_ context.Context) error {
	probe := filepath.Join(l.root, ".keywordoor-write-test")

	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("writing test file to %s: %w", l.root, err)
	}

	return os.Remove(probe)
}

func (l *localWriter) Put(
	_ context.Context, key string, data []byte, _ string,
) error {
	path := filepath.Join(l.root, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}

	l.log.WithField("key", key).
		WithField("bytes", len(data)).
		Debug("Archived document")

	return nil
}
