package rank

import (
	"strings"

	"github.com/elonfeng/bestpick/pkg/source"
)

// Dedupe drops later items that share the normalized host and title of an
// earlier one. Order is preserved.
func Dedupe(items []source.Item) []source.Item {
	seen := make(map[string]bool, len(items))
	out := make([]source.Item, 0, len(items))
	for _, it := range items {
		host := it.Host()
		if host == "" {
			host = strings.ToLower(strings.TrimSpace(it.URL))
		}
		key := host + "-" + strings.TrimSpace(it.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
