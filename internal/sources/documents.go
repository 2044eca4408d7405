package sources

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// DefaultDocumentMaxAge is how long a fetched document is reused.
const DefaultDocumentMaxAge = 2 * time.Second

// Documents shares HTTP GETs between sources reading the same URL, so the
// station summary and the recorder activity cost one request per cycle. A
// document fetched less than maxAge ago is reused; callers arriving while a
// request is in flight wait for it. Failures are never reused.
type Documents struct {
	client *http.Client
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*document
	fetches int
}

type document struct {
	done    chan struct{}
	body    []byte
	err     error
	fetched time.Time
}

// NewDocuments creates a document cache. A zero maxAge uses DefaultDocumentMaxAge.
func NewDocuments(client *http.Client, maxAge time.Duration, now func() time.Time) *Documents {
	if client == nil {
		client = &http.Client{}
	}
	if maxAge <= 0 {
		maxAge = DefaultDocumentMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &Documents{
		client:  client,
		maxAge:  maxAge,
		now:     now,
		entries: make(map[string]*document),
	}
}

// Get returns the body of url.
func (d *Documents) Get(ctx context.Context, url string) ([]byte, error) {
	d.mu.Lock()
	doc := d.entries[url]
	if doc != nil {
		select {
		case <-doc.done:
			if doc.err == nil && d.now().Sub(doc.fetched) < d.maxAge {
				d.mu.Unlock()
				return doc.body, nil
			}
			doc = nil
		default:
		}
	}

	if doc != nil {
		d.mu.Unlock()
		select {
		case <-doc.done:
			return doc.body, doc.err
		case <-ctx.Done():
			return nil, classify(ctx, ctx.Err())
		}
	}

	doc = &document{done: make(chan struct{})}
	d.entries[url] = doc
	d.fetches++
	d.mu.Unlock()

	doc.body, doc.err = d.fetch(ctx, url)
	doc.fetched = d.now()
	close(doc.done)
	return doc.body, doc.err
}

func (d *Documents) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := httpGet(ctx, d.client, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	return readBody(ctx, resp)
}

// Fetches returns the number of requests made.
func (d *Documents) Fetches() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}
