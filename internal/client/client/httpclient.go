package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dmitrijs2005/tightlines/internal/client/models"
)

const (
	requestTimeout = 12 * time.Second
	watchReconnect = 2 * time.Second
)

// HTTPClient implements Client against the record store's JSON API.
// Watches are long-poll loops driven by a server-side cursor.
type HTTPClient struct {
	endpointURL string
	authToken   string
	http        *http.Client
}

func NewHTTPClient(endpointURL string) *HTTPClient {
	return &HTTPClient{
		endpointURL: endpointURL,
		http:        &http.Client{Timeout: requestTimeout},
	}
}

// SetAuthToken attaches the identity provider's bearer token to subsequent
// requests.
func (c *HTTPClient) SetAuthToken(token string) {
	c.authToken = token
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// wireRecord is the store's JSON representation of a record. ClientID carries
// the record's local identity so redelivered writes reconcile to one server
// record instead of duplicating.
type wireRecord struct {
	ID        string             `json:"id,omitempty"`
	ClientID  string             `json:"client_id"`
	OwnerID   string             `json:"owner_id"`
	CreatedAt time.Time          `json:"created_at"`
	Trip      models.TripPayload `json:"trip"`
}

func toWire(rec *models.TripRecord) wireRecord {
	return wireRecord{
		ID:        rec.ServerID,
		ClientID:  rec.LocalID,
		OwnerID:   rec.OwnerID,
		CreatedAt: rec.CreatedAt,
		Trip:      rec.Payload,
	}
}

func toModel(w wireRecord) *models.TripRecord {
	localID := w.ClientID
	if localID == "" {
		// Record was authored elsewhere; adopt the server identity locally.
		localID = w.ID
	}
	return &models.TripRecord{
		LocalID:   localID,
		ServerID:  w.ID,
		OwnerID:   w.OwnerID,
		CreatedAt: w.CreatedAt,
		Payload:   w.Trip,
		Status:    models.StatusSynced,
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/ping", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.mapStatus(resp)
}

func (c *HTTPClient) AddRecord(ctx context.Context, collection string, rec *models.TripRecord) (string, error) {
	body, err := json.Marshal(toWire(rec))
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/"+url.PathEscape(collection)+"/records", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := c.mapStatus(resp); err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode add response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("%w: empty server id", ErrRejected)
	}
	return result.ID, nil
}

func (c *HTTPClient) QueryRecords(ctx context.Context, collection string, q Query) ([]*models.TripRecord, error) {
	path := "/v1/" + url.PathEscape(collection) + "/records?" + q.values("").Encode()

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.mapStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Records []wireRecord `json:"records"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}

	records := make([]*models.TripRecord, 0, len(result.Records))
	for _, w := range result.Records {
		records = append(records, toModel(w))
	}
	return records, nil
}

func (c *HTTPClient) Subscribe(ctx context.Context, collection string, q Query, cursor string, onUpdate func([]*models.TripRecord, string)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		c.watch(ctx, collection, q, cursor, onUpdate)
	}()

	unsubscribe := func() {
		cancel()
		<-done
	}
	return unsubscribe, nil
}

// watch long-polls the collection until ctx is cancelled, resuming from the
// given cursor. Transport errors only delay the next poll; the watch itself
// never fails.
func (c *HTTPClient) watch(ctx context.Context, collection string, q Query, cursor string, onUpdate func([]*models.TripRecord, string)) {
	for {
		if ctx.Err() != nil {
			return
		}

		path := "/v1/" + url.PathEscape(collection) + "/records/watch?" + q.values(cursor).Encode()
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			if !sleepCtx(ctx, watchReconnect) {
				return
			}
			continue
		}

		if err := c.mapStatus(resp); err != nil {
			resp.Body.Close()
			if !sleepCtx(ctx, watchReconnect) {
				return
			}
			continue
		}

		var result struct {
			Records []wireRecord `json:"records"`
			Cursor  string       `json:"cursor"`
		}
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			if !sleepCtx(ctx, watchReconnect) {
				return
			}
			continue
		}

		cursor = result.Cursor
		if len(result.Records) > 0 {
			records := make([]*models.TripRecord, 0, len(result.Records))
			for _, w := range result.Records {
				records = append(records, toModel(w))
			}
			onUpdate(records, cursor)
		}
	}
}

func (q Query) values(cursor string) url.Values {
	v := url.Values{}
	v.Set("owner_id", q.OwnerID)
	if q.OrderBy != "" {
		v.Set("order_by", q.OrderBy)
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	return v
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// mapStatus folds HTTP status codes into sentinel errors: 5xx and 429 mean
// the store is (temporarily) unavailable, other non-2xx mean the request was
// rejected.
func (c *HTTPClient) mapStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
