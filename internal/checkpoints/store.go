// Package checkpoints persists state dictionaries. A Store maps a
// checkpoint name to a JSON document; the local store writes files under
// a directory, the MinIO store writes objects in a bucket.
package checkpoints

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gradkit/gradkit/pkg/errors"
)

// Store persists named checkpoints.
type Store interface {
	// Save writes a checkpoint, replacing any previous one with the name
	Save(ctx context.Context, name string, state map[string]any) error

	// Load reads a checkpoint back
	Load(ctx context.Context, name string) (map[string]any, error)

	// List returns the stored checkpoint names, sorted
	List(ctx context.Context) ([]string, error)
}

const fileExtension = ".json"

// LocalStore writes checkpoints as JSON files under a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir, creating it if needed
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.InfrastructureError("checkpoint dir", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the root directory of the store
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExtension)
}

// Save writes the checkpoint through a temp file so readers never see a
// partial document
func (s *LocalStore) Save(ctx context.Context, name string, state map[string]any) error {
	if err := validateName(name); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "CHECKPOINT_ENCODE", "cannot encode checkpoint")
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return errors.InfrastructureError("checkpoint dir", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return errors.InfrastructureError("checkpoint write", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.InfrastructureError("checkpoint write", err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return errors.InfrastructureError("checkpoint write", err)
	}
	return nil
}

// Load reads a checkpoint back
func (s *LocalStore) Load(ctx context.Context, name string) (map[string]any, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	payload, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("checkpoint " + name)
		}
		return nil, errors.InfrastructureError("checkpoint read", err)
	}
	return decode(payload)
}

// List returns the stored checkpoint names, sorted
func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.InfrastructureError("checkpoint dir", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), fileExtension))
	}
	sort.Strings(names)
	return names, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.ValidationError("checkpoint name must not be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.ValidationErrorf("checkpoint name must not contain path separators (received: %q)", name)
	}
	return nil
}

func decode(payload []byte) (map[string]any, error) {
	var state map[string]any
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "CHECKPOINT_DECODE", "cannot decode checkpoint")
	}
	return state, nil
}
