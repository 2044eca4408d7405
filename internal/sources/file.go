package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
	"gopkg.in/yaml.v3"
)

// fileSource reads a status value from a local file written by another process.
type fileSource struct {
	id     string
	path   string
	format string
	key    string
	maxAge time.Duration
	now    func() time.Time
}

func newFile(cfg config.SourceConfig, deps Deps) *fileSource {
	format := cfg.Format
	if format == "" {
		switch strings.ToLower(filepath.Ext(cfg.Path)) {
		case ".json":
			format = "json"
		case ".yaml", ".yml":
			format = "yaml"
		case ".toml":
			format = "toml"
		default:
			format = "text"
		}
	}
	key := cfg.Key
	if key == "" {
		key = "status"
	}
	return &fileSource{
		id:     cfg.ID,
		path:   cfg.Path,
		format: format,
		key:    key,
		maxAge: cfg.MaxAge.D(),
		now:    deps.Now,
	}
}

func (s *fileSource) ID() string { return s.id }

func (s *fileSource) Fetch(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, classify(ctx, err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Observation{}, unavailable("%s does not exist", s.path)
		}
		return Observation{}, classify(ctx, err)
	}
	if s.maxAge > 0 {
		if age := s.now().Sub(info.ModTime()); age > s.maxAge {
			return Observation{
				Value:  status.ValueInactive,
				Detail: fmt.Sprintf("not updated for %s", age.Truncate(time.Second)),
			}, nil
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return Observation{}, classify(ctx, err)
	}

	raw, err := s.extract(data)
	if err != nil {
		return Observation{}, unavailable("%s: %v", s.path, err)
	}
	value, err := status.ParseValue(raw)
	if err != nil {
		return Observation{}, unavailable("%s: %v", s.path, err)
	}
	return Observation{Value: value, Detail: raw}, nil
}

// extract returns the textual status value held in data.
func (s *fileSource) extract(data []byte) (string, error) {
	if s.format == "text" {
		line, _, _ := bufio.NewReader(bytes.NewReader(data)).ReadLine()
		text := strings.TrimSpace(string(line))
		if text == "" {
			return "", errors.New("empty status file")
		}
		return text, nil
	}

	doc := make(map[string]any)
	var err error
	switch s.format {
	case "json":
		err = json.Unmarshal(data, &doc)
	case "yaml":
		err = yaml.Unmarshal(data, &doc)
	case "toml":
		err = toml.Unmarshal(data, &doc)
	default:
		err = fmt.Errorf("unsupported format %q", s.format)
	}
	if err != nil {
		return "", err
	}
	return lookupString(doc, s.key)
}

// lookupString follows a dotted key through nested maps.
func lookupString(doc map[string]any, key string) (string, error) {
	var current any = doc
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return "", fmt.Errorf("key %q not found", key)
		}
		if current, ok = m[part]; !ok {
			return "", fmt.Errorf("key %q not found", key)
		}
	}
	switch v := current.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("key %q is empty", key)
	case map[string]any, []any:
		return "", fmt.Errorf("key %q is not a scalar", key)
	default:
		return fmt.Sprint(v), nil
	}
}
