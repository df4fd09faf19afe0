// Package streamtest runs an in-process stream service speaking the Atom feed
// protocol of the feed package.
package streamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/indebted-modules/es/v2/feed"
)

// Server is a fake stream service. Every stream named <category>-<id> is also linked
// into the $ce-<category> stream.
type Server struct {
	mu      sync.Mutex
	streams map[string][]feed.Entry
	clock   time.Time
	http    *httptest.Server

	// Appends counts accepted append requests
	Appends int
	// Reads counts page requests
	Reads int
}

// NewServer starts a server. Credentials are required when username is not empty.
func NewServer(username, password string) *Server {
	gin.SetMode(gin.TestMode)

	s := &Server{
		streams: map[string][]feed.Entry{},
		clock:   time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	router := gin.New()
	streams := router.Group("/streams")
	if username != "" {
		streams.Use(gin.BasicAuth(gin.Accounts{username: password}))
	}
	streams.POST("/:stream", s.append)
	streams.GET("/:stream/:from/forward/:count", s.read)

	s.http = httptest.NewServer(router)
	return s
}

// URL returns the base URL of the service
func (s *Server) URL() string {
	return s.http.URL
}

// Close stops the server
func (s *Server) Close() {
	s.http.Close()
}

// Inject appends an entry as is, bypassing expected version checks
func (s *Server) Inject(stream string, entry feed.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.StreamID = stream
	entry.EventNumber = int64(len(s.streams[stream]))
	s.link(entry)
}

type proposedEvent struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Server) append(c *gin.Context) {
	stream := c.Param("stream")

	expected := feed.ExpectedAny
	if header := c.GetHeader("ES-ExpectedVersion"); header != "" {
		parsed, err := strconv.ParseInt(header, 10, 64)
		if err != nil {
			c.String(http.StatusBadRequest, "invalid ES-ExpectedVersion")
			return
		}
		expected = parsed
	}

	var events []proposedEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[stream])) - 1
	if expected != feed.ExpectedAny && expected != current {
		c.Header("ES-CurrentVersion", strconv.FormatInt(current, 10))
		c.String(http.StatusBadRequest, "Wrong expected EventNumber")
		return
	}

	for _, event := range events {
		s.link(feed.Entry{
			EventID:     event.EventID,
			EventType:   event.EventType,
			EventNumber: int64(len(s.streams[stream])),
			StreamID:    stream,
			Data:        embed(event.Data),
			MetaData:    embed(event.Metadata),
			Updated:     s.tick(),
		})
	}
	s.Appends++

	c.Header("Location", fmt.Sprintf("%s/streams/%s/%d", s.http.URL, url.PathEscape(stream), current+1))
	c.Status(http.StatusCreated)
}

func (s *Server) read(c *gin.Context) {
	stream := c.Param("stream")
	from, errFrom := strconv.Atoi(c.Param("from"))
	count, errCount := strconv.Atoi(c.Param("count"))
	if errFrom != nil || errCount != nil || from < 0 || count <= 0 {
		c.String(http.StatusBadRequest, "invalid page")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Reads++

	entries, ok := s.streams[stream]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	end := from + count
	if end > len(entries) {
		end = len(entries)
	}
	page := feed.Page{
		Entries:      []feed.Entry{},
		HeadOfStream: end >= len(entries),
		Links: []feed.Link{
			{URI: s.pageURI(stream, from, count), Relation: "self"},
		},
	}
	for i := end - 1; i >= from && i < len(entries); i-- {
		page.Entries = append(page.Entries, entries[i])
	}
	if !page.HeadOfStream {
		page.Links = append(page.Links, feed.Link{URI: s.pageURI(stream, end, count), Relation: "previous"})
	}

	c.Header("Content-Type", "application/vnd.eventstore.atom+json; charset=utf-8")
	c.JSON(http.StatusOK, page)
}

// link stores an entry in its stream and its category stream
func (s *Server) link(entry feed.Entry) {
	s.streams[entry.StreamID] = append(s.streams[entry.StreamID], entry)
	if i := strings.Index(entry.StreamID, "-"); i > 0 && !strings.HasPrefix(entry.StreamID, "$") {
		category := "$ce-" + entry.StreamID[:i]
		s.streams[category] = append(s.streams[category], entry)
	}
}

func (s *Server) tick() time.Time {
	now := s.clock
	s.clock = s.clock.Add(time.Second)
	return now
}

func (s *Server) pageURI(stream string, from, count int) string {
	return fmt.Sprintf("%s/streams/%s/%d/forward/%d?embed=body", s.http.URL, url.PathEscape(stream), from, count)
}

// embed returns a JSON document as a JSON string, the way the service embeds bodies
func embed(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	quoted, _ := json.Marshal(string(raw))
	return quoted
}
