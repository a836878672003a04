// Package gdrive is the remote document store: uploads, remote PDF export,
// folder search/creation and deletion on Google Drive.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/schoolfood/backoffice/internal/domain/documents"
	"github.com/schoolfood/backoffice/internal/platform/gcp"
	"github.com/schoolfood/backoffice/internal/platform/logger"
)

// File is a remote entry returned by Search.
type File struct {
	ID       string
	Name     string
	MimeType string
}

type Service interface {
	// Upload stores the local file behind a and returns a copy carrying the
	// remote id and view link. .docx files are converted to Google Docs.
	Upload(ctx context.Context, a documents.Artifact) (documents.Artifact, error)
	ConvertToPDF(ctx context.Context, remoteID string) ([]byte, error)
	// Search lists the folders directly under parentID, following pagination.
	Search(ctx context.Context, parentID string) ([]File, error)
	CreateDirectory(ctx context.Context, parentID, name string) (string, error)
	// Remove deletes a remote file. Missing files are not an error.
	Remove(ctx context.Context, remoteID string) error
}

type service struct {
	log   *logger.Logger
	drive *drive.Service
}

// NewService builds the Drive client once. Credentials come from
// GOOGLE_DRIVE_AUTH (service account JSON) or the shared GCP env vars;
// extra options (endpoint, http client) are appended last.
func NewService(ctx context.Context, log *logger.Logger, extra ...option.ClientOption) (Service, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveScope)}
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_DRIVE_AUTH")); raw != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(raw)))
	} else {
		opts = append(opts, gcp.ClientOptionsFromEnv()...)
	}
	opts = append(opts, extra...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	serviceLog := log.With("service", "DriveService")
	serviceLog.Info("Google Drive service ready", "scope", drive.DriveScope)
	return &service{log: serviceLog, drive: svc}, nil
}

func remoteMimeType(a documents.Artifact) string {
	if a.MimeType == documents.MimeDocx {
		return documents.MimeGoogleDoc
	}
	return a.MimeType
}

func (s *service) Upload(ctx context.Context, a documents.Artifact) (documents.Artifact, error) {
	f, err := os.Open(a.Path())
	if err != nil {
		return a, fmt.Errorf("open %s: %w", a.Path(), err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	meta := &drive.File{
		Name:     a.BaseName(),
		MimeType: remoteMimeType(a),
	}
	if a.ParentFolderID != "" {
		meta.Parents = []string{a.ParentFolderID}
	}
	created, err := s.drive.Files.Create(meta).
		Media(f, googleapi.ContentType(a.MimeType)).
		Fields("id", "webViewLink").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return a, fmt.Errorf("upload %s to %s: %w", a.Name, a.ParentFolderID, err)
	}
	s.log.Debug("Uploaded file", "name", a.Name, "id", created.Id, "parent_id", a.ParentFolderID, "web_view_link", created.WebViewLink)
	return a.WithRemote(created.Id, created.WebViewLink), nil
}

func (s *service) ConvertToPDF(ctx context.Context, remoteID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	resp, err := s.drive.Files.Export(remoteID, documents.MimePDF).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("export %s to pdf: %w", remoteID, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf export %s: %w", remoteID, err)
	}
	s.log.Debug("Exported pdf", "id", remoteID, "bytes", len(body))
	return body, nil
}

func (s *service) Search(ctx context.Context, parentID string) ([]File, error) {
	q := fmt.Sprintf("mimeType='%s' and '%s' in parents and trashed=false", documents.MimeFolder, escapeQuery(parentID))
	var out []File
	pageToken := ""
	for {
		call := s.drive.Files.List().
			Q(q).
			Spaces("drive").
			Fields("nextPageToken", "files(id, name, mimeType)").
			SupportsAllDrives(true).
			IncludeItemsFromAllDrives(true).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("search folders in %s: %w", parentID, err)
		}
		for _, f := range resp.Files {
			out = append(out, File{ID: f.Id, Name: f.Name, MimeType: f.MimeType})
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}
	return out, nil
}

func (s *service) CreateDirectory(ctx context.Context, parentID, name string) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: documents.MimeFolder,
	}
	if parentID != "" {
		meta.Parents = []string{parentID}
	}
	created, err := s.drive.Files.Create(meta).
		Fields("id").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("create directory %q in %s: %w", name, parentID, err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("create directory %q in %s: no id returned", name, parentID)
	}
	s.log.Debug("Directory created", "name", name, "id", created.Id, "parent_id", parentID)
	return created.Id, nil
}

func (s *service) Remove(ctx context.Context, remoteID string) error {
	if remoteID == "" {
		return nil
	}
	err := s.drive.Files.Delete(remoteID).SupportsAllDrives(true).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		s.log.Debug("Remote file already gone", "id", remoteID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %s: %w", remoteID, err)
	}
	s.log.Debug("Removed remote file", "id", remoteID)
	return nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
