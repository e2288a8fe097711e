package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"slideshow-batch/internal/domain"
	"slideshow-batch/internal/domain/ports/adapter"
	"slideshow-batch/internal/infra/metrics"
)

var _ adapter.StorageAdapter = (*DriveAdapter)(nil)

const folderMIME = "application/vnd.google-apps.folder"

// DriveAdapter ships artifacts to Google Drive. Folders are made viewable by
// anyone with the link so the operator can hand the URL straight to a client.
type DriveAdapter struct {
	svc *drive.Service
	log *zerolog.Logger
}

func NewDriveAdapter(ctx context.Context, credentialsFile string, log *zerolog.Logger) (*DriveAdapter, error) {
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &DriveAdapter{svc: svc, log: log}, nil
}

func (d *DriveAdapter) EnsureFolder(ctx context.Context, name, parentID string) (*adapter.FolderRef, error) {
	if existing, err := d.findFolder(ctx, name, parentID); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	meta := &drive.File{Name: name, MimeType: folderMIME}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	folder, err := d.svc.Files.Create(meta).Fields("id").Context(ctx).Do()
	if err != nil {
		return nil, mapDriveErr(err)
	}

	// Best effort: a folder without public permission is still usable.
	_, err = d.svc.Permissions.Create(folder.Id, &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}).Context(ctx).Do()
	if err != nil && d.log != nil {
		d.log.Warn().Str("folder", name).Err(err).Msg("could not make drive folder public")
	}

	return &adapter.FolderRef{ID: folder.Id, URL: folderURL(folder.Id)}, nil
}

func (d *DriveAdapter) findFolder(ctx context.Context, name, parentID string) (*adapter.FolderRef, error) {
	// Single quotes in names would break the query string.
	escaped := strings.ReplaceAll(name, `'`, `\'`)
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false", escaped, folderMIME)
	if parentID != "" {
		q += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	list, err := d.svc.Files.List().Q(q).Fields("files(id)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return nil, mapDriveErr(err)
	}
	if len(list.Files) == 0 {
		return nil, nil
	}
	id := list.Files[0].Id
	return &adapter.FolderRef{ID: id, URL: folderURL(id)}, nil
}

func (d *DriveAdapter) Upload(ctx context.Context, folderID, name string, data []byte) (string, error) {
	meta := &drive.File{Name: name, Parents: []string{folderID}}
	f, err := d.svc.Files.Create(meta).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink").
		Context(ctx).Do()
	metrics.IncUpload(err == nil)
	if err != nil {
		return "", mapDriveErr(err)
	}
	if f.WebViewLink != "" {
		return f.WebViewLink, nil
	}
	return "https://drive.google.com/file/d/" + f.Id + "/view", nil
}

func folderURL(id string) string {
	return "https://drive.google.com/drive/folders/" + id
}

func mapDriveErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 429:
			return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
		case gerr.Code == 403 && quotaReason(gerr):
			return fmt.Errorf("%w: %v", domain.ErrQuotaExceeded, err)
		case gerr.Code == 401 || gerr.Code == 403:
			return fmt.Errorf("%w: %v", domain.ErrAuthFailed, err)
		case gerr.Code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
	}
	return err
}

func quotaReason(gerr *googleapi.Error) bool {
	for _, e := range gerr.Errors {
		if strings.Contains(e.Reason, "quota") || strings.Contains(e.Reason, "storageQuotaExceeded") {
			return true
		}
	}
	return false
}
