// Package gdrive uploads acquisition output files to Google Drive.
//
// Authentication follows the installed-app OAuth flow: an OAuth client
// configuration (credentials.json) plus a previously granted user token
// (token.json). The token must already exist; obtaining one interactively is
// left to the standard gcloud/oauth tooling.
package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Client wraps one authenticated Drive v3 service.
type Client struct {
	svc *drive.Service
}

// File is the subset of Drive file metadata callers care about.
type File struct {
	ID   string
	Name string
}

// NewClient builds a Drive client from an OAuth client configuration file and
// a stored user token file.
func NewClient(ctx context.Context, credentialsFile, tokenFile string) (*Client, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	return token, err
}

// Upload sends the named local file into the given Drive folder and returns
// the new file's Drive ID. An empty folderID uploads to the Drive root.
func (c *Client) Upload(localPath, folderID string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	meta := &drive.File{Name: filepath.Base(localPath)}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	created, err := c.svc.Files.Create(meta).Media(f).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", localPath, err)
	}
	return created.Id, nil
}

// CreateFolder makes a Drive folder and returns its ID.
func (c *Client) CreateFolder(name string) (string, error) {
	meta := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	created, err := c.svc.Files.Create(meta).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("create folder %s: %w", name, err)
	}
	return created.Id, nil
}

// List returns up to pageSize files visible to the authenticated user.
func (c *Client) List(pageSize int64) ([]File, error) {
	resp, err := c.svc.Files.List().PageSize(pageSize).Fields("files(id, name)").Do()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	files := make([]File, 0, len(resp.Files))
	for _, f := range resp.Files {
		files = append(files, File{ID: f.Id, Name: f.Name})
	}
	return files, nil
}
