package storage

import (
	"context"
	"os"
	"path/filepath"

	"slideshow-batch/internal/domain/ports/adapter"
)

var _ adapter.StorageAdapter = (*LocalAdapter)(nil)

// LocalAdapter writes artifacts to a directory on disk. Used in dev mode so
// the pipeline runs without Drive credentials.
type LocalAdapter struct {
	root string
}

func NewLocalAdapter(root string) *LocalAdapter {
	if root == "" {
		root = "output"
	}
	return &LocalAdapter{root: root}
}

func (l *LocalAdapter) EnsureFolder(ctx context.Context, name, parentID string) (*adapter.FolderRef, error) {
	dir := filepath.Join(l.root, parentID, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(l.root, dir)
	if err != nil {
		return nil, err
	}
	return &adapter.FolderRef{ID: rel, URL: "file://" + dir}, nil
}

func (l *LocalAdapter) Upload(ctx context.Context, folderID, name string, data []byte) (string, error) {
	path := filepath.Join(l.root, folderID, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return "file://" + path, nil
}
