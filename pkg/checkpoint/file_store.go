package checkpoint

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/crestline-io/snowcap/pkg/errors"
	"github.com/crestline-io/snowcap/pkg/models"
)

// FileStore is a DurableStore backed by a single JSON file. Writes go through
// a temp file and rename so a crash mid-write never corrupts the checkpoint.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed durable store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the cursor from disk. A missing file means no checkpoint exists
// yet and returns (nil, nil).
func (s *FileStore) Load(_ context.Context) (*models.Cursor, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to read checkpoint file")
	}

	var cursor models.Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to decode checkpoint file")
	}

	if cursor.Offset < 0 {
		return nil, errors.Newf(errors.ErrorTypeCheckpoint, "checkpoint offset %d is negative", cursor.Offset)
	}

	return &cursor, nil
}

// Save writes the cursor atomically.
func (s *FileStore) Save(_ context.Context, cursor *models.Cursor) error {
	data, err := json.Marshal(cursor)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to encode cursor")
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snowcap-checkpoint-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to create temp checkpoint file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to write checkpoint")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to sync checkpoint")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to close checkpoint")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, errors.ErrorTypeCheckpoint, "failed to replace checkpoint file")
	}

	return nil
}
