package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// DefaultImageMaxAge is how recent an image must be for its producer to count as running.
const DefaultImageMaxAge = 120 * time.Second

// imageAge judges a periodically refreshed image by its Last-Modified header.
type imageAge struct {
	id     string
	url    string
	maxAge time.Duration
	client *http.Client
	now    func() time.Time
}

func newImageAge(cfg config.SourceConfig, deps Deps) *imageAge {
	maxAge := cfg.MaxAge.D()
	if maxAge <= 0 {
		maxAge = DefaultImageMaxAge
	}
	return &imageAge{id: cfg.ID, url: cfg.URL, maxAge: maxAge, client: deps.HTTPClient, now: deps.Now}
}

func (s *imageAge) ID() string { return s.id }

func (s *imageAge) Fetch(ctx context.Context) (Observation, error) {
	resp, err := httpGet(ctx, s.client, http.MethodHead, s.url)
	if resp != nil && resp.StatusCode == http.StatusMethodNotAllowed {
		resp, err = httpGet(ctx, s.client, http.MethodGet, s.url)
	}
	if err != nil {
		return Observation{}, err
	}
	drain(resp)

	header := resp.Header.Get("Last-Modified")
	if header == "" {
		return Observation{}, unavailable("%s has no Last-Modified header", s.url)
	}
	modified, err := http.ParseTime(header)
	if err != nil {
		return Observation{}, unavailable("bad Last-Modified %q: %v", header, err)
	}

	age := s.now().Sub(modified)
	if age < 0 {
		age = 0
	}
	detail := fmt.Sprintf("updated %s ago", age.Truncate(time.Second))
	if age < s.maxAge {
		return Observation{Value: status.ValueNominal, Detail: "Running, " + detail}, nil
	}
	return Observation{Value: status.ValueInactive, Detail: "Not running, " + detail}, nil
}
