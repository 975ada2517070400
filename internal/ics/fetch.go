package ics

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	appLog "github.com/tomasr8/new-timetable/internal/log"
)

// Source is a calendar feed: either a URL or a local file.
type Source struct {
	ID   string
	URL  string
	Path string
}

// FetchResult is the outcome of reading one source.
type FetchResult struct {
	Source Source
	Body   []byte
	// FromCache is set when the server answered 304 or failed and the last
	// good body was reused.
	FromCache bool
	// Changed reports whether Body differs from the previous fetch of the
	// same source. The first fetch is always a change.
	Changed bool
}

type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
	sum          [sha256.Size]byte
}

// Fetcher reads ICS sources, remembering validators and the last body per
// source so that refreshes are conditional requests.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewFetcher returns a Fetcher using client, or a client with a 15s timeout
// when client is nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client, cache: make(map[string]cacheEntry)}
}

// Fetch reads src. Local files are read directly; URLs are requested with
// If-None-Match / If-Modified-Since when a previous response is known.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (FetchResult, error) {
	switch {
	case src.Path != "":
		body, err := os.ReadFile(src.Path)
		if err != nil {
			return FetchResult{}, fmt.Errorf("ics: read %s: %w", src.Path, err)
		}
		return f.remember(src, cacheEntry{body: body}), nil
	case src.URL != "":
		return f.fetchURL(ctx, src)
	default:
		return FetchResult{}, errors.New("ics: source has neither URL nor path")
	}
}

func (f *Fetcher) fetchURL(ctx context.Context, src Source) (FetchResult, error) {
	key := src.key()
	f.mu.Lock()
	prev, cached := f.cache[key]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if cached {
		if prev.etag != "" {
			req.Header.Set("If-None-Match", prev.etag)
		}
		if prev.lastModified != "" {
			req.Header.Set("If-Modified-Since", prev.lastModified)
		}
	}

	appLog.Debug("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		if cached {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: prev.body, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FetchResult{}, err
		}
		res := f.remember(src, cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		})
		appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "changed", res.Changed)
		return res, nil

	case http.StatusNotModified:
		if !cached {
			return FetchResult{}, errors.New("ics: 304 Not Modified without a cached body")
		}
		appLog.Debug("ics fetch not modified", "id", src.ID, "url", redactURL(src.URL))
		return FetchResult{Source: src, Body: prev.body, FromCache: true}, nil

	default:
		if cached {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL))
			return FetchResult{Source: src, Body: prev.body, FromCache: true}, nil
		}
		return FetchResult{}, fmt.Errorf("ics: fetch %s: %s", redactURL(src.URL), resp.Status)
	}
}

func (f *Fetcher) remember(src Source, e cacheEntry) FetchResult {
	e.sum = sha256.Sum256(e.body)

	f.mu.Lock()
	prev, ok := f.cache[src.key()]
	f.cache[src.key()] = e
	f.mu.Unlock()

	return FetchResult{
		Source:  src,
		Body:    e.body,
		Changed: !ok || prev.sum != e.sum,
	}
}

func (s Source) key() string {
	if s.Path != "" {
		return "file:" + s.Path
	}
	return s.URL
}

// redactURL keeps only scheme and host; feed URLs often embed secrets.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
