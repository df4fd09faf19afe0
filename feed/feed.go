package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Page is one page of an Atom feed. Entries are ordered newest first.
type Page struct {
	Entries      []Entry `json:"entries"`
	Links        []Link  `json:"links"`
	HeadOfStream bool    `json:"headOfStream"`
}

// Link is a relation to another page
type Link struct {
	URI      string `json:"uri"`
	Relation string `json:"relation"`
}

// Entry is a feed entry with its event embedded
type Entry struct {
	EventID     string          `json:"eventId"`
	EventType   string          `json:"eventType"`
	EventNumber int64           `json:"eventNumber"`
	StreamID    string          `json:"streamId"`
	Data        json.RawMessage `json:"data"`
	MetaData    json.RawMessage `json:"metaData"`
	Updated     time.Time       `json:"updated"`
}

// Body returns the event data as a JSON document
func (e *Entry) Body() []byte {
	return document(e.Data)
}

// Metadata returns the event metadata as a JSON document
func (e *Entry) Metadata() []byte {
	return document(e.MetaData)
}

// document unwraps JSON embedded as a string, which is how the service embeds bodies
func document(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s == "" {
				return nil
			}
			return []byte(s)
		}
	}
	return raw
}

func (p *Page) link(relation string) (string, bool) {
	for _, l := range p.Links {
		if l.Relation == relation {
			return l.URI, true
		}
	}
	return "", false
}

// Feed reads a stream forward, one page at a time. A Feed is not safe for
// concurrent use.
type Feed struct {
	client  *Client
	first   string
	next    string
	started bool
	done    bool
	entries []Entry
	pos     int
}

// Next returns the next entry, or nil once the stream is exhausted
func (f *Feed) Next(ctx context.Context) (*Entry, error) {
	for {
		if f.pos < len(f.entries) {
			entry := f.entries[f.pos]
			f.pos++
			return &entry, nil
		}
		if f.done {
			return nil, nil
		}
		if err := f.load(ctx); err != nil {
			return nil, err
		}
	}
}

// Rewind moves the feed back to the first page
func (f *Feed) Rewind() {
	f.next = ""
	f.started = false
	f.done = false
	f.entries = nil
	f.pos = 0
}

func (f *Feed) load(ctx context.Context) error {
	uri := f.next
	if !f.started {
		uri = f.first
		f.started = true
	}

	page, err := f.client.readPage(ctx, uri)
	if errors.Is(err, errStreamNotFound) {
		f.done = true
		f.entries = nil
		f.pos = 0
		return nil
	}
	if err != nil {
		return err
	}

	entries := make([]Entry, len(page.Entries))
	for i, entry := range page.Entries {
		entries[len(entries)-1-i] = entry
	}
	f.entries = entries
	f.pos = 0

	next, ok := page.link("previous")
	if !ok || len(page.Entries) == 0 || page.HeadOfStream {
		f.done = true
		return nil
	}
	f.next = next
	return nil
}
