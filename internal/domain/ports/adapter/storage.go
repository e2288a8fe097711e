package adapter

import "context"

// FolderRef identifies a remote destination folder.
type FolderRef struct {
	ID  string
	URL string
}

// StorageAdapter ships completed artifacts to the remote destination.
// EnsureFolder creates the folder or reuses an existing one with the same
// name. Quota and auth failures are terminal (ErrQuotaExceeded, ErrAuthFailed).
type StorageAdapter interface {
	EnsureFolder(ctx context.Context, name, parentID string) (*FolderRef, error)
	Upload(ctx context.Context, folderID, name string, data []byte) (string, error)
}
