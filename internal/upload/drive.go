// Package upload implements the artifact upload transport backed by
// Google Drive.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// Config holds Drive settings.
type Config struct {
	// CredentialsFile is the OAuth2 client JSON downloaded from the
	// Google Cloud console.
	CredentialsFile string
	// TokenFile holds the refresh token obtained out of band.
	TokenFile string
	// Folder is the Drive folder ID uploads land in; empty means the
	// Drive root.
	Folder string
	// Timeout bounds each upload call.
	Timeout time.Duration
}

// DriveUploader uploads artifacts and retrieves their share links. It
// implements the delivery pipeline's Transport interface for upload
// items.
type DriveUploader struct {
	svc     *drive.Service
	folder  string
	timeout time.Duration
}

// NewDriveUploader builds the Drive client from stored credentials.
func NewDriveUploader(ctx context.Context, cfg Config) (*DriveUploader, error) {
	credBytes, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive credentials: %w", err)
	}

	oauthConfig, err := google.ConfigFromJSON(credBytes, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	svc, err := drive.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &DriveUploader{svc: svc, folder: cfg.Folder, timeout: timeout}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read drive token (run the auth flow first): %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse drive token: %w", err)
	}
	return &token, nil
}

// Send uploads the item's artifact and records the share link on the
// item so the notification can reference it.
func (u *DriveUploader) Send(ctx context.Context, item *model.DeliveryItem) error {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	f, err := os.Open(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to open artifact %s: %w", item.Payload, err)
	}
	defer func() { _ = f.Close() }()

	meta := &drive.File{Name: filepath.Base(item.Payload)}
	if u.folder != "" {
		meta.Parents = []string{u.folder}
	}

	created, err := u.svc.Files.Create(meta).
		Media(f).
		Fields("id", "webViewLink").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("drive upload failed for %s: %w", item.Payload, err)
	}

	item.Link = created.WebViewLink
	return nil
}
