package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourusername/dl-progress/api/handlers"
	"github.com/yourusername/dl-progress/internal/domain"
	"github.com/yourusername/dl-progress/pkg/logger"
)

// apiClient talks to the dl-progress server
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError carries the server's error message and status code
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return &apiError{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *apiClient) addFetch(rawURL, title, destination string) (*domain.FetchJob, error) {
	payload := map[string]string{"url": rawURL}
	if title != "" {
		payload["title"] = title
	}
	if destination != "" {
		payload["destination"] = destination
	}
	var job domain.FetchJob
	if err := c.do(http.MethodPost, "/api/v1/fetches", payload, http.StatusCreated, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) listFetches(status string) ([]domain.FetchJob, error) {
	path := "/api/v1/fetches"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var jobs []domain.FetchJob
	err := c.do(http.MethodGet, path, nil, http.StatusOK, &jobs)
	return jobs, err
}

func (c *apiClient) getFetch(id string) (*domain.FetchJob, error) {
	var job domain.FetchJob
	if err := c.do(http.MethodGet, "/api/v1/fetches/"+url.PathEscape(id), nil, http.StatusOK, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *apiClient) stats() (*domain.FetchStats, error) {
	var stats domain.FetchStats
	if err := c.do(http.MethodGet, "/api/v1/fetches/stats", nil, http.StatusOK, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *apiClient) cancelFetch(id string) error {
	return c.do(http.MethodPost, "/api/v1/fetches/"+url.PathEscape(id)+"/cancel", nil, http.StatusOK, nil)
}

func (c *apiClient) retryFetch(id string) error {
	return c.do(http.MethodPost, "/api/v1/fetches/"+url.PathEscape(id)+"/retry", nil, http.StatusOK, nil)
}

// progressRow is one entry of GET /api/v1/progress
type progressRow struct {
	domain.DownloadRequest
	Label   string                  `json:"label"`
	Outcome *domain.FetcherResponse `json:"outcome,omitempty"`
}

func (c *apiClient) listProgress() ([]progressRow, error) {
	var rows []progressRow
	err := c.do(http.MethodGet, "/api/v1/progress", nil, http.StatusOK, &rows)
	return rows, err
}

func (c *apiClient) getProgress(id string) (*progressRow, error) {
	var row progressRow
	if err := c.do(http.MethodGet, "/api/v1/progress/"+url.PathEscape(id), nil, http.StatusOK, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

type logsResult struct {
	Category string            `json:"category"`
	Date     string            `json:"date"`
	Count    int               `json:"count"`
	Entries  []logger.LogEntry `json:"entries"`
}

func (c *apiClient) logs(category, date, query string, limit int) (*logsResult, error) {
	path := "/api/v1/logs/" + url.PathEscape(category)
	params := url.Values{}
	if query != "" {
		path += "/search"
		params.Set("q", query)
	}
	if date != "" {
		params.Set("date", date)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var result logsResult
	if err := c.do(http.MethodGet, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// streamURL converts the base URL into the progress stream endpoint
func (c *apiClient) streamURL(id string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/progress/stream")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if id != "" {
		u.RawQuery = url.Values{"id": {id}}.Encode()
	}
	return u.String(), nil
}

// watch streams progress messages until ctx is done, the server closes the
// connection, or handle returns false.
func (c *apiClient) watch(ctx context.Context, id string, handle func(handlers.StreamMessage) bool) error {
	endpoint, err := c.streamURL(id)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to progress stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg handlers.StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if !handle(msg) {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		}
	}
}
