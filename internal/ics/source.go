// Package ics imports events from iCalendar subscription feeds.
package ics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"remindcal/internal/models"
	"remindcal/internal/syncer"
)

// Source fetches one ICS feed over HTTP. It remembers the last ETag and body so an
// unchanged feed is answered with 304 and parsed from memory.
type Source struct {
	logger *slog.Logger
	url    string
	client *http.Client
	loc    *time.Location

	mu           sync.Mutex
	etag         string
	lastModified string
	body         []byte
}

var _ syncer.Source = (*Source)(nil)

// NewSource creates a feed source. Floating and all-day times are read in loc.
func NewSource(logger *slog.Logger, url string, timeout time.Duration, loc *time.Location) *Source {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Source{
		logger: logger,
		url:    url,
		client: &http.Client{Timeout: timeout},
		loc:    loc,
	}
}

func (s *Source) Name() string { return "ics" }

func (s *Source) FetchEvents(ctx context.Context, ownerID int64, r syncer.DateRange) ([]models.Event, error) {
	body, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	events, err := Parse(s.logger, body, r, s.loc)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Fetched events from ICS feed", "ownerID", ownerID, "count", len(events))
	return events, nil
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}
	if s.body != nil {
		if s.etag != "" {
			req.Header.Set("If-None-Match", s.etag)
		}
		if s.lastModified != "" {
			req.Header.Set("If-Modified-Since", s.lastModified)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && s.body != nil:
		s.logger.Debug("ICS feed not modified, using cached body.")
		return s.body, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("feed responded %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	s.body = body
	s.etag = resp.Header.Get("ETag")
	s.lastModified = resp.Header.Get("Last-Modified")
	return body, nil
}
