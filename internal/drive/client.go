// Package drive is a minimal Google Drive v3 REST client covering the
// operations the backup destinations need: folder resolution, listing,
// multipart upload, media download, and deletion. Authentication rides on an
// oauth2 transport so token refresh is transparent to callers.
package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAPIBase    = "https://www.googleapis.com/drive/v3"
	defaultUploadBase = "https://www.googleapis.com/upload/drive/v3"

	// fileFields selects the handle fields on every request; everything else
	// Drive could return is dead weight.
	fileFields = "id,name,size,mimeType,md5Checksum,createdTime"
)

// Client is a Google Drive v3 REST client.
type Client struct {
	http       *http.Client
	apiBase    string
	uploadBase string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the API and upload endpoints. Used by tests.
func WithBaseURLs(api, upload string) Option {
	return func(c *Client) {
		c.apiBase = strings.TrimSuffix(api, "/")
		c.uploadBase = strings.TrimSuffix(upload, "/")
	}
}

// NewClient creates a Drive client authenticating with source.
func NewClient(source oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{
			Transport: &oauth2.Transport{Source: source},
			Timeout:   5 * time.Minute, // uploads of full settings exports can be slow on bad links
		},
		apiBase:    defaultAPIBase,
		uploadBase: defaultUploadBase,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// EnsureFolder returns the folder named name at the Drive root, creating it
// when absent. Trashed folders are ignored rather than resurrected.
func (c *Client) EnsureFolder(ctx context.Context, name string) (Folder, error) {
	query := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		escapeQueryTerm(name), FolderMimeType)

	params := url.Values{}
	params.Set("q", query)
	params.Set("fields", "files(id,name)")
	params.Set("pageSize", "1")

	var list fileList
	if err := c.getJSON(ctx, c.apiBase+"/files?"+params.Encode(), &list); err != nil {
		return Folder{}, fmt.Errorf("finding folder %q: %w", name, err)
	}

	if len(list.Files) > 0 {
		return Folder{ID: list.Files[0].ID, Name: list.Files[0].Name}, nil
	}

	return c.createFolder(ctx, name)
}

// createFolder creates a folder at the Drive root.
func (c *Client) createFolder(ctx context.Context, name string) (Folder, error) {
	metadata := map[string]string{
		"name":     name,
		"mimeType": FolderMimeType,
	}
	body, err := json.Marshal(metadata)
	if err != nil {
		return Folder{}, fmt.Errorf("encoding folder metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/files?fields=id,name", bytes.NewReader(body))
	if err != nil {
		return Folder{}, fmt.Errorf("creating folder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return Folder{}, fmt.Errorf("creating folder %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Folder{}, errorFromResponse(resp)
	}

	var folder Folder
	if err := json.NewDecoder(resp.Body).Decode(&folder); err != nil {
		return Folder{}, fmt.Errorf("decoding folder response: %w", err)
	}

	return folder, nil
}

// ListFiles returns all non-trashed files under folderID, following
// pagination to the end.
func (c *Client) ListFiles(ctx context.Context, folderID string) ([]File, error) {
	var files []File
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", escapeQueryTerm(folderID)))
		params.Set("fields", fmt.Sprintf("files(%s),nextPageToken", fileFields))
		params.Set("pageSize", "100")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.getJSON(ctx, c.apiBase+"/files?"+params.Encode(), &page); err != nil {
			return nil, fmt.Errorf("listing folder %s: %w", folderID, err)
		}

		files = append(files, page.Files...)

		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// Upload creates a file named name under folderID from content using a
// multipart/related request (metadata part plus media part).
func (c *Client) Upload(ctx context.Context, folderID, name, mimeType string, content io.Reader) (File, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"application/json; charset=UTF-8"},
	})
	if err != nil {
		return File{}, fmt.Errorf("creating metadata part: %w", err)
	}
	metadata := map[string]any{
		"name":    name,
		"parents": []string{folderID},
	}
	if err := json.NewEncoder(metaPart).Encode(metadata); err != nil {
		return File{}, fmt.Errorf("encoding file metadata: %w", err)
	}

	mediaPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type": {mimeType},
	})
	if err != nil {
		return File{}, fmt.Errorf("creating media part: %w", err)
	}
	if _, err := io.Copy(mediaPart, content); err != nil {
		return File{}, fmt.Errorf("buffering upload content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return File{}, fmt.Errorf("finalizing multipart body: %w", err)
	}

	uploadURL := c.uploadBase + "/files?uploadType=multipart&fields=" + url.QueryEscape(fileFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &body)
	if err != nil {
		return File{}, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.http.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("uploading %q: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return File{}, errorFromResponse(resp)
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return File{}, fmt.Errorf("decoding upload response: %w", err)
	}

	return file, nil
}

// Download streams the content of fileID. The caller owns the returned
// reader and must close it.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	downloadURL := fmt.Sprintf("%s/files/%s?alt=media", c.apiBase, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", fileID, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		return nil, errorFromResponse(resp)
	}

	return resp.Body, nil
}

// Delete permanently removes fileID. Deleting an already-gone file returns
// ErrNotFound.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	deleteURL := fmt.Sprintf("%s/files/%s", c.apiBase, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, deleteURL, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", fileID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	return nil
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errorFromResponse(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

// escapeQueryTerm escapes a value for interpolation into a Drive q= query,
// which uses single-quoted string literals.
func escapeQueryTerm(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	return strings.ReplaceAll(term, `'`, `\'`)
}
