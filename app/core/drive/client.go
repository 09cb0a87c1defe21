// Package drive is a small Google Drive v3 client for the ingest folder and
// the approved-document upload: list, download, rename, multipart upload,
// and push-notification channel management.
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

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

const (
	defaultAPIRoot    = "https://www.googleapis.com/drive/v3"
	defaultUploadRoot = "https://www.googleapis.com/upload/drive/v3"
)

type File struct {
	ID       string
	Name     string
	MimeType string
}

// WatchChannel identifies an active push-notification subscription.
type WatchChannel struct {
	ID         string
	ResourceID string
	Expiration int64
}

// Client is the file-store surface the watcher and the approval fan-out
// depend on; the REST implementation below is swappable in tests.
type Client interface {
	List(ctx context.Context, folderID, mimeType string, pageSize int) ([]File, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	Rename(ctx context.Context, fileID, name string) error
	Upload(ctx context.Context, folderID, name, mimeType string, content []byte) (id, webViewLink string, err error)
	Watch(ctx context.Context, folderID, address, token string) (WatchChannel, error)
	Stop(ctx context.Context, ch WatchChannel) error
}

type Config struct {
	AccessToken string
	APIRoot     string
	UploadRoot  string
}

type RESTClient struct {
	cfg        Config
	httpClient *http.Client
}

func NewRESTClient(cfg Config) *RESTClient {
	if strings.TrimSpace(cfg.APIRoot) == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if strings.TrimSpace(cfg.UploadRoot) == "" {
		cfg.UploadRoot = defaultUploadRoot
	}
	return &RESTClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// List returns folder files of the given mime type, newest first, bounded
// by pageSize.
func (c *RESTClient) List(ctx context.Context, folderID, mimeType string, pageSize int) ([]File, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	query := url.Values{}
	query.Set("q", fmt.Sprintf("'%s' in parents and mimeType='%s' and trashed=false", folderID, mimeType))
	query.Set("orderBy", "createdTime desc")
	query.Set("pageSize", fmt.Sprintf("%d", pageSize))
	query.Set("fields", "files(id,name,mimeType)")

	body, err := c.do(ctx, http.MethodGet, c.cfg.APIRoot+"/files?"+query.Encode(), "", nil)
	if err != nil {
		return nil, err
	}

	var files []File
	gjson.GetBytes(body, "files").ForEach(func(_, f gjson.Result) bool {
		files = append(files, File{
			ID:       f.Get("id").String(),
			Name:     f.Get("name").String(),
			MimeType: f.Get("mimeType").String(),
		})
		return true
	})
	return files, nil
}

func (c *RESTClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, fmt.Sprintf("%s/files/%s?alt=media", c.cfg.APIRoot, fileID), "", nil)
}

// Rename applies the processed-marker convention by replacing the file name.
func (c *RESTClient) Rename(ctx context.Context, fileID, name string) error {
	payload, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/files/%s", c.cfg.APIRoot, fileID), "application/json", bytes.NewReader(payload))
	return err
}

// Upload stores a generated document via a multipart/related request and
// returns the file id and browser link.
func (c *RESTClient) Upload(ctx context.Context, folderID, name, mimeType string, content []byte) (string, string, error) {
	meta := map[string]interface{}{"name": name}
	if folderID != "" {
		meta["parents"] = []string{folderID}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return "", "", err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return "", "", err
	}

	contentHeader := textproto.MIMEHeader{}
	contentHeader.Set("Content-Type", mimeType)
	contentPart, err := writer.CreatePart(contentHeader)
	if err != nil {
		return "", "", err
	}
	if _, err := contentPart.Write(content); err != nil {
		return "", "", err
	}
	if err := writer.Close(); err != nil {
		return "", "", err
	}

	endpoint := c.cfg.UploadRoot + "/files?uploadType=multipart&fields=id,webViewLink&supportsAllDrives=true"
	respBody, err := c.do(ctx, http.MethodPost, endpoint, "multipart/related; boundary="+writer.Boundary(), &body)
	if err != nil {
		return "", "", err
	}
	return gjson.GetBytes(respBody, "id").String(), gjson.GetBytes(respBody, "webViewLink").String(), nil
}

// Watch registers a web-hook push channel on a folder.
func (c *RESTClient) Watch(ctx context.Context, folderID, address, token string) (WatchChannel, error) {
	payload := map[string]interface{}{
		"id":      "minutes-watch-" + uuid.NewString(),
		"type":    "web_hook",
		"address": address,
	}
	if token != "" {
		payload["token"] = token
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return WatchChannel{}, err
	}

	respBody, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/files/%s/watch", c.cfg.APIRoot, folderID), "application/json", bytes.NewReader(body))
	if err != nil {
		return WatchChannel{}, err
	}
	return WatchChannel{
		ID:         gjson.GetBytes(respBody, "id").String(),
		ResourceID: gjson.GetBytes(respBody, "resourceId").String(),
		Expiration: gjson.GetBytes(respBody, "expiration").Int(),
	}, nil
}

// Stop tears down a push channel. Best effort at shutdown.
func (c *RESTClient) Stop(ctx context.Context, ch WatchChannel) error {
	payload, err := json.Marshal(map[string]string{"id": ch.ID, "resourceId": ch.ResourceID})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPost, c.cfg.APIRoot+"/channels/stop", "application/json", bytes.NewReader(payload))
	return err
}

func (c *RESTClient) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("drive api %s %s status=%d body=%s", method, endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
