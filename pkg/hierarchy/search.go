package hierarchy

import "strings"

const (
	// MinSearchLength is the shortest query Search matches against
	MinSearchLength = 2
	// DefaultSearchLimit caps the results when no limit is given
	DefaultSearchLimit = 5
)

// Search returns the entities whose name or role contains query, ignoring
// case, in the order given. Queries shorter than MinSearchLength match
// nothing. A limit of zero or less means DefaultSearchLimit.
func Search(entities []Entity, query string, limit int) []Entity {
	q := strings.ToLower(strings.TrimSpace(query))
	if len([]rune(q)) < MinSearchLength {
		return []Entity{}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	out := []Entity{}
	for _, e := range entities {
		if len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Role), q) {
			out = append(out, e)
		}
	}
	return out
}
