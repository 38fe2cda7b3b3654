package domain

// FetchMethod describes how a source's listing page is retrieved.
// Values include FetchMethodStatic, FetchMethodRendered, and FetchMethodFeed.
type FetchMethod string

const (
	FetchMethodStatic   FetchMethod = "static"
	FetchMethodRendered FetchMethod = "rendered"
	FetchMethodFeed     FetchMethod = "feed"
)

// PriorityTier groups sources by how often they publish.
// Tier 1 sources are polled on every pass; higher tiers may be filtered out.
type PriorityTier int

// SourceConfig describes one monitored site or feed.
// Loaded from the site registry at startup and never mutated at runtime.
type SourceConfig struct {
	ID       string       `yaml:"id" json:"id"`
	Name     string       `yaml:"name" json:"name"`
	Method   FetchMethod  `yaml:"method" json:"method"`
	Tier     PriorityTier `yaml:"tier" json:"tier"`
	URLs     []string     `yaml:"urls" json:"urls"`
	BaseURL  string       `yaml:"base_url" json:"base_url,omitempty"`
	Category string       `yaml:"category" json:"category"`
	State    string       `yaml:"state" json:"state,omitempty"`
	// Selectors are tried before the default content selectors.
	Selectors []string `yaml:"selectors" json:"selectors,omitempty"`
	Enabled   *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// IsEnabled reports whether the source should be polled. Sources are
// enabled unless explicitly disabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ResolveBase returns the base URL used to absolutize links found on pageURL.
func (s SourceConfig) ResolveBase(pageURL string) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	return pageURL
}
