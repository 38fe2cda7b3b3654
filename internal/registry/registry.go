// Package registry loads the static list of monitored sources.
package registry

import (
	"fmt"
	"net/url"
	"os"
	"sort"

	"github.com/timmy/examwatch/internal/domain"
	"gopkg.in/yaml.v3"
)

type file struct {
	Sources []domain.SourceConfig `yaml:"sources"`
}

// Registry is an immutable, id-indexed set of source configurations.
type Registry struct {
	sources []domain.SourceConfig
	byID    map[string]domain.SourceConfig
}

// Load reads and validates a registry YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry: %w", err)
	}
	return New(f.Sources)
}

// New validates sources and returns a registry ordered by tier then id.
func New(sources []domain.SourceConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]domain.SourceConfig, len(sources))}

	for _, src := range sources {
		if err := validate(src); err != nil {
			return nil, err
		}
		if _, dup := r.byID[src.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate source id %q", src.ID)
		}
		if src.Tier == 0 {
			src.Tier = 1
		}
		r.byID[src.ID] = src
		r.sources = append(r.sources, src)
	}

	sort.SliceStable(r.sources, func(i, j int) bool {
		if r.sources[i].Tier != r.sources[j].Tier {
			return r.sources[i].Tier < r.sources[j].Tier
		}
		return r.sources[i].ID < r.sources[j].ID
	})

	return r, nil
}

func validate(src domain.SourceConfig) error {
	if src.ID == "" {
		return fmt.Errorf("registry: source without id")
	}
	switch src.Method {
	case domain.FetchMethodStatic, domain.FetchMethodRendered, domain.FetchMethodFeed:
	default:
		return fmt.Errorf("registry: source %q has unknown method %q", src.ID, src.Method)
	}
	if len(src.URLs) == 0 {
		return fmt.Errorf("registry: source %q has no urls", src.ID)
	}
	for _, raw := range append([]string{src.BaseURL}, src.URLs...) {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("registry: source %q has invalid url %q", src.ID, raw)
		}
	}
	return nil
}

// Get returns a source by id.
func (r *Registry) Get(id string) (domain.SourceConfig, bool) {
	src, ok := r.byID[id]
	return src, ok
}

// All returns every source in registry order.
func (r *Registry) All() []domain.SourceConfig {
	out := make([]domain.SourceConfig, len(r.sources))
	copy(out, r.sources)
	return out
}

// Select returns the enabled sources for a pass. A non-empty onlyID wins over
// the tier filter; maxTier <= 0 means all tiers.
func (r *Registry) Select(maxTier int, onlyID string) ([]domain.SourceConfig, error) {
	if onlyID != "" {
		src, ok := r.byID[onlyID]
		if !ok {
			return nil, fmt.Errorf("registry: unknown source %q", onlyID)
		}
		return []domain.SourceConfig{src}, nil
	}

	var out []domain.SourceConfig
	for _, src := range r.sources {
		if !src.IsEnabled() {
			continue
		}
		if maxTier > 0 && int(src.Tier) > maxTier {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}
