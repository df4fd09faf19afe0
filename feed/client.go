package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// ExpectedAny skips the expected version check
	ExpectedAny int64 = -2
	// ExpectedNoStream requires the stream not to exist
	ExpectedNoStream int64 = -1

	// DefaultPageSize is the number of entries requested per page
	DefaultPageSize = 20

	atomJSON   = "application/vnd.eventstore.atom+json"
	eventsJSON = "application/vnd.eventstore.events+json"
)

var (
	// ErrWrongExpectedVersion is returned when an append's expected version does not hold
	ErrWrongExpectedVersion = errors.New("wrong expected version")
	// errStreamNotFound is returned when reading a stream which does not exist
	errStreamNotFound = errors.New("stream not found")
)

// Client talks to the stream service
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	PageSize   int
	HTTPClient *http.Client
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:  baseURL,
		Username: username,
		Password: password,
		PageSize: DefaultPageSize,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProposedEvent is an event to append
type ProposedEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Open returns a feed over stream starting at its first event
func (c *Client) Open(stream string) *Feed {
	return &Feed{
		client: c,
		first:  c.firstPageURI(stream),
	}
}

// Append posts events to stream. expectedVersion is the zero-based number of the
// last event in the stream, ExpectedNoStream or ExpectedAny. It returns the number
// the service gave the first appended event, or -1 when the service did not say.
func (c *Client) Append(ctx context.Context, stream string, expectedVersion int64, events []ProposedEvent) (int64, error) {
	body, err := json.Marshal(events)
	if err != nil {
		return -1, fmt.Errorf("failed to encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.streamURI(stream), bytes.NewReader(body))
	if err != nil {
		return -1, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", eventsJSON)
	req.Header.Set("ES-ExpectedVersion", strconv.FormatInt(expectedVersion, 10))

	resp, err := c.do(req)
	if err != nil {
		return -1, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		return firstEventNumber(resp.Header.Get("Location"), expectedVersion), nil
	case resp.StatusCode == http.StatusConflict,
		resp.StatusCode == http.StatusBadRequest && resp.Header.Get("ES-CurrentVersion") != "":
		return -1, fmt.Errorf("%w: stream %s is at version %s", ErrWrongExpectedVersion, stream, resp.Header.Get("ES-CurrentVersion"))
	default:
		return -1, unexpectedStatus(resp)
	}
}

// firstEventNumber reads the event number ending the Location of an append,
// falling back to the expected version when it is a concrete one.
func firstEventNumber(location string, expectedVersion int64) int64 {
	if i := strings.LastIndex(location, "/"); i >= 0 {
		if n, err := strconv.ParseInt(location[i+1:], 10, 64); err == nil && n >= 0 {
			return n
		}
	}
	if expectedVersion >= ExpectedNoStream {
		return expectedVersion + 1
	}
	return -1
}

func (c *Client) readPage(ctx context.Context, uri string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", atomJSON)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errStreamNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, unexpectedStatus(resp)
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode feed page %s: %w", uri, err)
	}
	return &page, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach stream service: %w", err)
	}
	return resp, nil
}

func (c *Client) streamURI(stream string) string {
	return fmt.Sprintf("%s/streams/%s", c.BaseURL, url.PathEscape(stream))
}

func (c *Client) firstPageURI(stream string) string {
	size := c.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return fmt.Sprintf("%s/0/forward/%d?embed=body", c.streamURI(stream), size)
}

func unexpectedStatus(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("unexpected status from stream service: status=%d, body=%s", resp.StatusCode, string(body))
}
