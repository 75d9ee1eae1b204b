// Package remote implements the agent's HTTP client for the sync API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ksolodov/fieldreporter/internal/api"
	"github.com/ksolodov/fieldreporter/internal/common"
)

// Client is everything the agent needs from the server. Errors are
// mapped to the common sentinels so callers can classify without
// knowing HTTP.
type Client interface {
	Ping(ctx context.Context) error
	Register(ctx context.Context, deviceName string) (*api.RegisterResponse, error)
	Login(ctx context.Context, deviceID string) (*api.LoginResponse, error)
	Push(ctx context.Context, items []api.PushItem) ([]api.PushResult, error)
	Pull(ctx context.Context, since int64) (*api.PullResponse, error)
	UploadChunk(ctx context.Context, mediaID string, offset int64, chunk []byte) (*api.ChunkResult, error)
	CompleteMedia(ctx context.Context, mediaID string) (*api.ChunkResult, error)
}

// HTTPClient talks JSON over REST with bearer authentication.
type HTTPClient struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken installs the bearer token used on authenticated calls.
func (c *HTTPClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *HTTPClient) authToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if token := c.authToken(); token != "" {
		req.Header.Set(common.AuthHeaderName, common.AuthScheme+" "+token)
	}
	return req, nil
}

// do runs the request and decodes a 2xx JSON body into out (out may be
// nil). Non-2xx statuses come back as classified sentinel errors.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", common.ErrTransientNetwork, err)
		}
		return nil
	}

	var apiErr api.Error
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	msg := apiErr.Message
	if msg == "" {
		msg = resp.Status
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", common.ErrVersionConflict, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, msg)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", common.ErrPermanentValidation, msg)
	default:
		// 5xx and anything unexpected is worth retrying
		return fmt.Errorf("%w: %s", common.ErrTransientNetwork, msg)
	}
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *HTTPClient) Register(ctx context.Context, deviceName string) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.postJSON(ctx, "/api/devices/register", &api.RegisterRequest{DeviceName: deviceName}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *HTTPClient) Login(ctx context.Context, deviceID string) (*api.LoginResponse, error) {
	var resp api.LoginResponse
	err := c.postJSON(ctx, "/api/devices/login", &api.LoginRequest{DeviceID: deviceID}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *HTTPClient) Push(ctx context.Context, items []api.PushItem) ([]api.PushResult, error) {
	var results []api.PushResult
	if err := c.postJSON(ctx, "/api/sync/push", items, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *HTTPClient) Pull(ctx context.Context, since int64) (*api.PullResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/sync/pull?since="+strconv.FormatInt(since, 10), nil)
	if err != nil {
		return nil, err
	}
	var resp api.PullResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadChunk sends one chunk of the media payload. On an offset
// mismatch the server answers 409 with the offset it expects; that
// result is returned together with ErrVersionConflict so the caller
// can resynchronize instead of giving up.
func (c *HTTPClient) UploadChunk(ctx context.Context, mediaID string, offset int64, chunk []byte) (*api.ChunkResult, error) {
	path := "/api/media/" + mediaID + "/chunks?offset=" + strconv.FormatInt(offset, 10)
	req, err := c.newRequest(ctx, http.MethodPut, path, bytes.NewReader(chunk))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var result api.ChunkResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("%w: offset mismatch", common.ErrVersionConflict)
		}
		return &result, fmt.Errorf("%w: server expects offset %d", common.ErrVersionConflict, result.NextOffset)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.Error
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := apiErr.Message
		if msg == "" {
			msg = resp.Status
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("%w: %s", common.ErrUnauthorized, msg)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return nil, fmt.Errorf("%w: %s", common.ErrPermanentValidation, msg)
		case http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, msg)
		default:
			return nil, fmt.Errorf("%w: %s", common.ErrTransientNetwork, msg)
		}
	}

	var result api.ChunkResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", common.ErrTransientNetwork, err)
	}
	return &result, nil
}

func (c *HTTPClient) CompleteMedia(ctx context.Context, mediaID string) (*api.ChunkResult, error) {
	var result api.ChunkResult
	if err := c.postJSON(ctx, "/api/media/"+mediaID+"/complete", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
