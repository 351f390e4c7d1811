package search

import "strings"

// triggerTerms are temporal/factual indicators that a message likely needs
// fresh external context.
var triggerTerms = []string{
	"search", "look up", "find out", "what is the latest",
	"current", "today", "recent", "news", "weather",
	"price", "stock", "when", "where is", "who is",
	"latest", "newest", "updated", "2024", "2025",
}

// ShouldSearch reports whether a message warrants web enrichment. It is a
// pure substring heuristic: no I/O, deterministic, safe to call inline.
func ShouldSearch(message string) bool {
	lower := strings.ToLower(message)
	for _, term := range triggerTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
