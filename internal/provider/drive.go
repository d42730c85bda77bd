package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	driveFileName = "pagenote.enc"
	driveMimeType = "application/json"
)

// TokenSource supplies a bearer token for the cloud file store. The consent
// flow that produces the token is owned by the caller; the provider only
// caches the result across calls.
type TokenSource func(ctx context.Context) (string, error)

type DriveOptions struct {
	BaseURL     string
	TokenSource TokenSource
	HTTPClient  *http.Client
}

var _ Provider = (*Drive)(nil)

// Drive keeps the encrypted blob as a single well-known file in the
// application-private folder of a cloud file store.
type Drive struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	mu          sync.Mutex
	cachedToken string
}

func NewDrive(opts DriveOptions) *Drive {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &Drive{
		baseURL:    baseURL,
		tokens:     opts.TokenSource,
		httpClient: httpClient,
	}
}

func (d *Drive) Name() string { return NameDrive }

func (d *Drive) Push(ctx context.Context, payload []byte) error {
	token, err := d.token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}

	fileID, err := d.findFileID(ctx, token)
	if err != nil {
		if isAuthStatus(err) {
			d.dropToken()
			return fmt.Errorf("%w: %v", ErrAuth, err)
		}
		return err
	}

	if fileID != "" {
		_, err = doRetry(ctx, d.httpClient, request{
			method: http.MethodPatch,
			url:    fmt.Sprintf("%s/upload/drive/v3/files/%s?uploadType=media", d.baseURL, fileID),
			headers: map[string]string{
				"Authorization": "Bearer " + token,
				"Content-Type":  driveMimeType,
			},
			body: payload,
		})
		return err
	}

	// No file yet: multipart create inside the app-private folder.
	body, contentType, err := driveMultipartBody(payload)
	if err != nil {
		return err
	}
	_, err = doRetry(ctx, d.httpClient, request{
		method: http.MethodPost,
		url:    d.baseURL + "/upload/drive/v3/files?uploadType=multipart",
		headers: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  contentType,
		},
		body: body,
	})
	return err
}

// Pull returns the file content or absent; token, lookup and transport
// failures all degrade to absent.
func (d *Drive) Pull(ctx context.Context) ([]byte, error) {
	token, err := d.token(ctx)
	if err != nil {
		logrus.Debugf("drive pull: no token: %v", err)
		return nil, nil
	}
	fileID, err := d.findFileID(ctx, token)
	if err != nil || fileID == "" {
		if err != nil {
			logrus.Debugf("drive pull: lookup failed: %v", err)
		}
		return nil, nil
	}
	payload, err := doRetry(ctx, d.httpClient, request{
		method:  http.MethodGet,
		url:     fmt.Sprintf("%s/drive/v3/files/%s?alt=media", d.baseURL, fileID),
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		logrus.Debugf("drive pull: read failed: %v", err)
		return nil, nil
	}
	if len(payload) == 0 {
		return nil, nil
	}
	return payload, nil
}

func (d *Drive) token(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cachedToken != "" {
		return d.cachedToken, nil
	}
	if d.tokens == nil {
		return "", ErrNotConfigured
	}
	token, err := d.tokens(ctx)
	if err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNotConfigured
	}
	d.cachedToken = token
	return token, nil
}

func (d *Drive) dropToken() {
	d.mu.Lock()
	d.cachedToken = ""
	d.mu.Unlock()
}

func (d *Drive) findFileID(ctx context.Context, token string) (string, error) {
	query := url.QueryEscape(fmt.Sprintf("name='%s' and trashed=false", driveFileName))
	payload, err := doRetry(ctx, d.httpClient, request{
		method:  http.MethodGet,
		url:     fmt.Sprintf("%s/drive/v3/files?q=%s&spaces=appDataFolder", d.baseURL, query),
		headers: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Files []struct {
			ID string `json:"id"`
		} `json:"files"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", err
	}
	if len(out.Files) == 0 {
		return "", nil
	}
	return out.Files[0].ID, nil
}

func driveMultipartBody(payload []byte) ([]byte, string, error) {
	metadata, err := json.Marshal(map[string]any{
		"name":     driveFileName,
		"mimeType": driveMimeType,
		"parents":  []string{"appDataFolder"},
	})
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(metadata); err != nil {
		return nil, "", err
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Type", driveMimeType)
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := filePart.Write(payload); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/related; boundary=" + writer.Boundary(), nil
}
