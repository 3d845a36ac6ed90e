package core

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfigLoader reads raw configuration from a YAML document. Durations are
// Go duration strings ("10m", "168h") or bare integers in seconds.
type YAMLConfigLoader struct {
	Path string
	// Data takes precedence over Path when set.
	Data []byte
}

func (l YAMLConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	data := l.Data
	if len(data) == 0 {
		path := strings.TrimSpace(l.Path)
		if path == "" {
			return map[string]any{}, nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("core: read config %q: %w", path, err)
		}
		data = raw
	}

	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("core: parse yaml config: %w", err)
	}
	if err := normalizeDurations(out, ""); err != nil {
		return nil, err
	}
	return out, nil
}

var durationKeys = map[string]struct{}{
	"oauth.state_ttl":       {},
	"refresh.threshold":     {},
	"refresh.lock_ttl":      {},
	"sync.interval":         {},
	"graph.request_timeout": {},
}

func normalizeDurations(values map[string]any, prefix string) error {
	for key, value := range values {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch typed := value.(type) {
		case map[string]any:
			if err := normalizeDurations(typed, path); err != nil {
				return err
			}
		case string:
			if _, ok := durationKeys[path]; !ok {
				continue
			}
			parsed, err := time.ParseDuration(strings.TrimSpace(typed))
			if err != nil {
				return fmt.Errorf("core: %s: invalid duration %q", path, typed)
			}
			values[key] = parsed
		case int:
			if _, ok := durationKeys[path]; ok {
				values[key] = time.Duration(typed) * time.Second
			}
		}
	}
	return nil
}
