// Package search indexes scheduled events for later retrieval.
package search

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

	appLog "taskcal/internal/log"
)

// Doc is one indexed event.
type Doc struct {
	EventID string     `json:"eventId"`
	Vector  []float64  `json:"vector"`
	UserID  string     `json:"userId"`
	Start   *time.Time `json:"startDate,omitempty"`
	End     *time.Time `json:"endDate,omitempty"`
}

// Indexer accepts event documents. Failures are for the caller to log.
type Indexer interface {
	IndexEvent(ctx context.Context, doc Doc) error
	IndexTraining(ctx context.Context, doc Doc) error
}

// Noop discards every document.
type Noop struct{}

func (Noop) IndexEvent(context.Context, Doc) error    { return nil }
func (Noop) IndexTraining(context.Context, Doc) error { return nil }

// Options configures an OpenSearch indexer.
type Options struct {
	URL        string
	Username   string
	Password   string
	AllIndex   string
	TrainIndex string
	Timeout    time.Duration
}

// OpenSearch writes documents with PUT /{index}/_doc/{id}.
type OpenSearch struct {
	base       string
	username   string
	password   string
	allIndex   string
	trainIndex string
	http       *http.Client
}

func NewOpenSearch(opts Options) *OpenSearch {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &OpenSearch{
		base:       strings.TrimRight(opts.URL, "/"),
		username:   opts.Username,
		password:   opts.Password,
		allIndex:   opts.AllIndex,
		trainIndex: opts.TrainIndex,
		http:       &http.Client{Timeout: opts.Timeout},
	}
}

func (o *OpenSearch) IndexEvent(ctx context.Context, doc Doc) error {
	return o.put(ctx, o.allIndex, doc)
}

func (o *OpenSearch) IndexTraining(ctx context.Context, doc Doc) error {
	return o.put(ctx, o.trainIndex, doc)
}

func (o *OpenSearch) put(ctx context.Context, index string, doc Doc) error {
	if doc.EventID == "" {
		return fmt.Errorf("search: document without event ID")
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	u := o.base + "/" + url.PathEscape(index) + "/_doc/" + url.PathEscape(doc.EventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.username != "" {
		req.SetBasicAuth(o.username, o.password)
	}

	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("search: index %s: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("search: index %s: unexpected status %d: %s", index, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	appLog.Debug("indexed event", "index", index, "event_id", doc.EventID)
	return nil
}
