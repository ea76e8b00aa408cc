package taskwire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Syncer is the HTTP transport against the Taskwire server: it transmits
// change batches, fetches baseline pages and probes connectivity. It
// implements Transport and PageClient.
type Syncer struct {
	baseURL string
	token   string
	debug   *DebugLogger
	client  *http.Client
}

// NewSyncer creates a transport for the given server.
func NewSyncer(baseURL, token string, debug *DebugLogger) *Syncer {
	return &Syncer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		debug:   debug,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// PushChanges posts the batch to the sync endpoint and returns the
// per-record outcomes. Request-level failures come back as *SyncError with
// the class the engine's retry policy keys on: no response is network, a
// 5xx is server, anything else is unknown.
func (s *Syncer) PushChanges(ctx context.Context, batch []Change) (SyncStatus, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, &SyncError{Class: ErrorClassUnknown, Err: fmt.Errorf("encode batch: %w", err)}
	}

	url := s.baseURL + "/api/sync"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &SyncError{Class: ErrorClassUnknown, Err: err}
	}
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	// One ID per transmission attempt, for correlating retries in server
	// logs. Change IDs, not attempt IDs, carry the idempotency.
	req.Header.Set("X-Sync-Attempt", ulid.Make().String())

	s.debug.LogRequest(http.MethodPost, url, body)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SyncError{Class: ErrorClassNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	s.debug.LogResponse(resp.StatusCode, resp.Status, respBody)

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &SyncError{
			Class:      ErrorClassServer,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("push failed: %s", resp.Status),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &SyncError{
			Class:      ErrorClassUnknown,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("push failed: %s - %s", resp.Status, string(respBody)),
		}
	}

	var result SyncResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &SyncError{Class: ErrorClassUnknown, Err: fmt.Errorf("decode sync response: %w", err)}
	}
	return result.SyncStatus, nil
}

// FetchPage retrieves one baseline page. The URL is either the partition's
// first-page path or the next_page_url from a previous response; relative
// URLs are resolved against the server base.
func (s *Syncer) FetchPage(ctx context.Context, url string) (Page, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = s.baseURL + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Page{}, fmt.Errorf("fetch page failed: %s - %s", resp.Status, string(respBody))
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return Page{}, fmt.Errorf("decode page: %w", err)
	}
	return page, nil
}

// FirstPageURL returns the canonical first-page path for a partition.
func FirstPageURL(p Partition) string {
	return "/api/tasks/" + string(p)
}

// Health probes the server. Used as the host connectivity signal.
func (s *Syncer) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/health", nil)
	if err != nil {
		return nil, err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check failed: %s", resp.Status)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, err
	}
	return &health, nil
}

func (s *Syncer) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("User-Agent", "taskwire-client/1.0")
}
