package text

import "strings"

// DefaultContextLimit bounds the prompt excerpt when the caller passes no limit.
const DefaultContextLimit = 6000

// ContextWindow is the excerpt of a document chosen for one request.
type ContextWindow struct {
	Text            string
	Offset          int
	Hits            int
	HasKeywordMatch bool
}

// SelectContext picks the window of at most limit runes whose text contains the
// most distinct query keywords. Windows advance by limit/3; ties keep the earliest.
func SelectContext(input, query string, limit int) ContextWindow {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	runes := []rune(Sanitize(input))
	keywords := ExtractKeywords(query)
	if len(keywords) == 0 || len(runes) == 0 {
		return ContextWindow{Text: string(runes[:min(limit, len(runes))])}
	}
	step := limit / 3
	if step < 1 {
		step = 1
	}
	best := ContextWindow{Hits: -1}
	for start := 0; start < len(runes); start += step {
		end := min(start+limit, len(runes))
		window := string(runes[start:end])
		hits := countHits(strings.ToLower(window), keywords)
		if hits > best.Hits {
			best = ContextWindow{Text: window, Offset: start, Hits: hits}
		}
		if end == len(runes) {
			break
		}
	}
	best.HasKeywordMatch = best.Hits > 0
	return best
}

func countHits(lowered string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			hits++
		}
	}
	return hits
}
