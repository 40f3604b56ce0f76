package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lherron/cfgsync/internal/resource"
)

// Source is where dashboards are read from
type Source interface {
	ListDashboards(ctx context.Context) ([]resource.Summary, error)
	GetDashboard(ctx context.Context, id string) (*resource.Resource, error)
	ListUsers(ctx context.Context) ([]resource.User, error)
}

// Target is where dashboards are written to
type Target interface {
	ListDashboards(ctx context.Context) ([]resource.Summary, error)
	GetDashboard(ctx context.Context, id string) (*resource.Resource, error)
	CreateDashboard(ctx context.Context, d *resource.Resource) (*resource.Resource, error)
	UpdateDashboard(ctx context.Context, id string, d *resource.Resource) (*resource.Resource, error)
	ListUsers(ctx context.Context) ([]resource.User, error)
}

// ErrNoUsers is returned by sources that carry no user directory
var ErrNoUsers = errors.New("source file carries no user list")

// FileSource serves listing and details from a saved JSON array of full
// dashboard payloads.
type FileSource struct {
	path       string
	dashboards []*resource.Resource
	byID       map[string]*resource.Resource
}

// OpenFileSource reads a file written by SaveSource
func OpenFileSource(path string) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source file: %w", err)
	}
	var dashboards []*resource.Resource
	if err := json.Unmarshal(data, &dashboards); err != nil {
		return nil, fmt.Errorf("parse source file %s: %w", path, err)
	}

	fs := &FileSource{path: path, dashboards: dashboards, byID: make(map[string]*resource.Resource, len(dashboards))}
	for i, d := range dashboards {
		if d.ID == "" {
			d.ID = fmt.Sprintf("file-%d", i)
		}
		if _, dup := fs.byID[d.ID]; !dup {
			fs.byID[d.ID] = d
		}
	}
	return fs, nil
}

// ListDashboards returns the file's entries in file order
func (f *FileSource) ListDashboards(context.Context) ([]resource.Summary, error) {
	return resource.Summaries(f.dashboards), nil
}

// GetDashboard returns a copy of one entry
func (f *FileSource) GetDashboard(_ context.Context, id string) (*resource.Resource, error) {
	d, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("dashboard %s not found in %s", id, f.path)
	}
	return d.Clone(), nil
}

// ListUsers always fails: saved files hold no users
func (f *FileSource) ListUsers(context.Context) ([]resource.User, error) {
	return nil, ErrNoUsers
}

// SaveSource writes dashboards as an indented JSON array readable by
// OpenFileSource. The file is replaced atomically.
func SaveSource(path string, dashboards []*resource.Resource) error {
	if dashboards == nil {
		dashboards = []*resource.Resource{}
	}
	data, err := json.MarshalIndent(dashboards, "", "  ")
	if err != nil {
		return fmt.Errorf("encode source dashboards: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cfgsync-*.json")
	if err != nil {
		return fmt.Errorf("save source dashboards: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("save source dashboards: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save source dashboards: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save source dashboards: %w", err)
	}
	return nil
}
