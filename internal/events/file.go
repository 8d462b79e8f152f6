package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"datanest-backend/internal/model"
)

// File appends events as JSON lines to one file per UTC day. It is the sink
// used when no broker is configured.
type File struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ Publisher = (*File)(nil)

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Errorf("creating event dir: %w", err)
	}
	return &File{dir: dir, now: time.Now}, nil
}

func (f *File) path() string {
	return filepath.Join(f.dir, fmt.Sprintf("events_%s.jsonl", f.now().UTC().Format("2006-01-02")))
}

func (f *File) Publish(_ context.Context, evt model.MarketEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return xerrors.Errorf("encoding event: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := os.OpenFile(f.path(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Errorf("opening event log: %w", err)
	}
	defer out.Close()

	_, err = out.Write(append(data, '\n'))
	return err
}

func (f *File) Close() error { return nil }
