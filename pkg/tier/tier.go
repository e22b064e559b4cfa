// Package tier labels reviewer domains for display. Tiers never feed the
// numeric score.
package tier

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier describes one trust level and the domains in it.
type Tier struct {
	Tier       int      `yaml:"tier" json:"tier"`
	Label      string   `yaml:"label" json:"label"`
	Emoji      string   `yaml:"emoji" json:"emoji,omitempty"`
	WhyTrusted string   `yaml:"why_trusted" json:"why_trusted,omitempty"`
	Domains    []string `yaml:"domains" json:"-"`
}

// Config is the on-disk shape of a tier file.
type Config struct {
	Vertical string `yaml:"vertical"`
	Tiers    []Tier `yaml:"tiers"`
}

// Table is an immutable hostname index built once at startup.
type Table struct {
	vertical string
	byHost   map[string]Tier
	tiers    []Tier
}

// New indexes cfg. The first tier listing a domain wins.
func New(cfg Config) (*Table, error) {
	t := &Table{
		vertical: cfg.Vertical,
		byHost:   make(map[string]Tier),
	}
	for _, tr := range cfg.Tiers {
		if tr.Tier < 1 || tr.Tier > 3 {
			return nil, fmt.Errorf("tier %q: level %d must be 1, 2 or 3", tr.Label, tr.Tier)
		}
		domains := make([]string, 0, len(tr.Domains))
		for _, d := range tr.Domains {
			d = normalize(d)
			if d == "" {
				continue
			}
			domains = append(domains, d)
		}
		tr.Domains = domains
		for _, d := range domains {
			if _, ok := t.byHost[d]; !ok {
				t.byHost[d] = tr
			}
		}
		t.tiers = append(t.tiers, tr)
	}
	return t, nil
}

// Load reads a YAML tier file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tiers %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse tiers %s: %w", path, err)
	}
	return New(cfg)
}

// Vertical returns the product category the table was written for.
func (t *Table) Vertical() string { return t.vertical }

// Tiers returns a copy of all tiers in file order.
func (t *Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Lookup finds the tier for host, trying parent domains so that
// "gear.example.com" matches an "example.com" entry.
func (t *Table) Lookup(host string) (Tier, bool) {
	if t == nil {
		return Tier{}, false
	}
	h := normalize(host)
	for h != "" {
		if tr, ok := t.byHost[h]; ok {
			return tr, true
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
		if !strings.Contains(h, ".") {
			break
		}
	}
	return Tier{}, false
}

func normalize(host string) string {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	if i := strings.IndexAny(h, "/:"); i >= 0 {
		h = h[:i]
	}
	return strings.TrimPrefix(h, "www.")
}

// Default returns the built-in table used when no tier file is configured.
func Default() *Table {
	t, _ := New(Config{
		Vertical: "general",
		Tiers: []Tier{
			{
				Tier:       1,
				Label:      "Lab tested",
				Emoji:      "🧪",
				WhyTrusted: "Buys products and measures them with repeatable tests.",
				Domains:    []string{"rtings.com", "runrepeat.com", "consumerreports.org", "nytimes.com"},
			},
			{
				Tier:       2,
				Label:      "Established editorial",
				Emoji:      "📰",
				WhyTrusted: "Long-running publications with named reviewers and corrections policies.",
				Domains:    []string{"outdoorgearlab.com", "runnersworld.com", "believeintherun.com", "techradar.com", "theverge.com"},
			},
			{
				Tier:       3,
				Label:      "Community",
				Emoji:      "💬",
				WhyTrusted: "First-hand owner reports; useful in volume, noisy alone.",
				Domains:    []string{"reddit.com", "youtube.com"},
			},
		},
	})
	return t
}
