// Package gdrive implements store.Store on top of the Google Drive v3 API.
//
// Listing walks the folder tree through files.list. Fetching uses the
// files/{id}?alt=media endpoint when an API key is configured, and falls
// back to the public uc?export=download flow (including the interstitial
// "can't scan for viruses" confirm form) for link-shared files.
package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/comfycloud/lazymodels/pkg/logging"
	"github.com/comfycloud/lazymodels/pkg/store"
)

const (
	defaultAPIBaseURL      = "https://www.googleapis.com/drive/v3"
	defaultDownloadBaseURL = "https://drive.google.com"

	folderMimeType = "application/vnd.google-apps.folder"

	// listPageSize is the files.list page size. Drive caps it at 1000.
	listPageSize = 1000
)

// ClientConfig configures a Drive client.
type ClientConfig struct {
	// APIKey is an optional Drive API key. Without it, listing fails and
	// fetching is limited to the public download flow.
	APIKey string
	// APIBaseURL overrides the Drive API base URL. Used in tests.
	APIBaseURL string
	// DownloadBaseURL overrides the public download base URL. Used in tests.
	DownloadBaseURL string
	// HTTPClient is the HTTP client to use. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger is the associated logger.
	Logger logging.Logger
}

// Client is a Google Drive content store.
type Client struct {
	apiKey      string
	apiBase     string
	downloadURL string
	httpClient  *http.Client
	log         logging.Logger
}

// NewClient creates a Drive-backed content store.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:      cfg.APIKey,
		apiBase:     cfg.APIBaseURL,
		downloadURL: cfg.DownloadBaseURL,
		httpClient:  cfg.HTTPClient,
		log:         cfg.Logger,
	}
	if c.apiBase == "" {
		c.apiBase = defaultAPIBaseURL
	}
	if c.downloadURL == "" {
		c.downloadURL = defaultDownloadBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

type driveFile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

type fileList struct {
	NextPageToken string      `json:"nextPageToken"`
	Files         []driveFile `json:"files"`
}

// ListFolder walks the folder tree rooted at folderID and returns one entry
// per regular file, with paths relative to the root folder.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]store.Entry, error) {
	type pending struct {
		id     string
		prefix string
	}

	var entries []store.Entry
	queue := []pending{{id: folderID}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		files, err := c.listChildren(ctx, current.id)
		if err != nil {
			return nil, fmt.Errorf("list folder %q: %w", current.id, err)
		}
		if c.log != nil {
			c.log.Debugf("folder %s: %d children", current.id, len(files))
		}
		for _, f := range files {
			if f.MimeType == folderMimeType {
				queue = append(queue, pending{id: f.ID, prefix: path.Join(current.prefix, f.Name)})
				continue
			}
			entries = append(entries, store.Entry{
				Path:   path.Join(current.prefix, f.Name),
				Handle: f.ID,
			})
		}
	}

	return entries, nil
}

// listChildren returns the direct children of one folder, following
// pagination.
func (c *Client) listChildren(ctx context.Context, folderID string) ([]driveFile, error) {
	var files []driveFile
	pageToken := ""

	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		q.Set("fields", "nextPageToken, files(id, name, mimeType)")
		q.Set("pageSize", fmt.Sprintf("%d", listPageSize))
		if c.apiKey != "" {
			q.Set("key", c.apiKey)
		}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/files?"+q.Encode(), http.NoBody)
		if err != nil {
			return nil, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		var page fileList
		err = func() error {
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("drive API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			return json.NewDecoder(resp.Body).Decode(&page)
		}()
		if err != nil {
			return nil, err
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

// Fetch downloads the object identified by handle into dest.
func (c *Client) Fetch(ctx context.Context, handle, dest string) error {
	var resp *http.Response
	var err error
	if c.apiKey != "" {
		resp, err = c.fetchViaAPI(ctx, handle)
	} else {
		resp, err = c.fetchPublic(ctx, handle)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download %q: %w", handle, err)
	}
	return f.Close()
}

func (c *Client) fetchViaAPI(ctx context.Context, handle string) (*http.Response, error) {
	q := url.Values{}
	q.Set("alt", "media")
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+"/files/"+url.PathEscape(handle)+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("drive API returned %d for %q", resp.StatusCode, handle)
	}
	return resp, nil
}

// confirmFormRe matches the hidden inputs of the large-file confirmation
// page that Drive serves instead of the content.
var confirmFormRe = regexp.MustCompile(`<input type="hidden" name="([^"]+)" value="([^"]*)"`)

// confirmActionRe matches the confirmation form's action URL.
var confirmActionRe = regexp.MustCompile(`<form[^>]+action="([^"]+)"`)

func (c *Client) fetchPublic(ctx context.Context, handle string) (*http.Response, error) {
	u := c.downloadURL + "/uc?export=download&id=" + url.QueryEscape(handle)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	if !isHTML(resp) {
		return resp, nil
	}

	// Got the confirmation page instead of the payload. Re-submit the
	// embedded form with its hidden fields (confirm token, uuid).
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read confirmation page: %w", err)
	}

	action := c.downloadURL + "/uc"
	if m := confirmActionRe.FindSubmatch(body); m != nil {
		action = strings.ReplaceAll(string(m[1]), "&amp;", "&")
	}
	q := url.Values{}
	for _, m := range confirmFormRe.FindAllSubmatch(body, -1) {
		q.Set(string(m[1]), string(m[2]))
	}
	if q.Get("id") == "" {
		q.Set("id", handle)
	}
	if q.Get("confirm") == "" {
		q.Set("confirm", "t")
	}

	sep := "?"
	if strings.Contains(action, "?") {
		sep = "&"
	}
	resp, err = c.get(ctx, action+sep+q.Encode())
	if err != nil {
		return nil, err
	}
	if isHTML(resp) {
		resp.Body.Close()
		return nil, fmt.Errorf("drive did not release content for %q (not public, or quota exceeded)", handle)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("drive returned %d for %s", resp.StatusCode, u)
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/html")
}
