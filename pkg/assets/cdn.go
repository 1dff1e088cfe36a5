package assets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// CDNClient implements Uploader against a hosted image CDN that accepts
// multipart uploads and applies named transformation pipelines server-side.
type CDNClient struct {
	uploadURL  string
	apiKey     string
	httpClient *http.Client
}

// NewCDNClient constructs an asset host client.
func NewCDNClient(uploadURL, apiKey string) *CDNClient {
	return &CDNClient{
		uploadURL: strings.TrimRight(strings.TrimSpace(uploadURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Upload stores the file and returns its public URL.
func (c *CDNClient) Upload(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	return c.upload(ctx, filename, r, "")
}

// UploadWithTransform stores the file with a transformation pipeline applied
// and returns the URL of the transformed asset.
func (c *CDNClient) UploadWithTransform(ctx context.Context, filename string, r io.Reader, size int64, transform string) (string, error) {
	return c.upload(ctx, filename, r, transform)
}

func (c *CDNClient) upload(ctx context.Context, filename string, r io.Reader, transform string) (string, error) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		if transform != "" {
			if err := writer.WriteField("transformation", transform); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/upload", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("asset upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error != "" {
			return "", fmt.Errorf("asset host error: %s", errResp.Error)
		}
		return "", fmt.Errorf("asset host error: %s", resp.Status)
	}

	var uploadResp struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploadResp); err != nil {
		return "", fmt.Errorf("asset host decode: %w", err)
	}
	if strings.TrimSpace(uploadResp.URL) == "" {
		return "", fmt.Errorf("asset host returned no url")
	}
	return uploadResp.URL, nil
}
