package text

import (
	"regexp"
	"strings"
	"unicode"
)

// MinSentenceLen is the shortest sentence kept in "substantial" sentence sets.
const MinSentenceLen = 40

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`),
	regexp.MustCompile(`(?i)\bdownload(?:ed)?\s+from\b.*$`),
	regexp.MustCompile(`(?i)\bjoin\s+now\b`),
	regexp.MustCompile(`(?i)\bshare\s+this\b`),
}

var paragraphBreak = regexp.MustCompile(`\n[ \t\r]*\n`)

// Sanitize strips promotional noise and normalizes whitespace line by line.
// Empty lines are dropped. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(input string) string {
	if input == "" {
		return ""
	}
	lines := strings.Split(input, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if cleaned := cleanLine(line); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, "\n")
}

func cleanLine(line string) string {
	// removing one pattern can glue together another one, so run to a fixed point
	for i := 0; i < 8; i++ {
		next := line
		for _, re := range noisePatterns {
			next = re.ReplaceAllString(next, " ")
		}
		next = collapseSpaces(next)
		if next == line {
			break
		}
		line = next
	}
	return line
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitSentences cuts text after '.', '!' or '?' followed by whitespace and keeps
// sentences of at least minLen bytes. Pass 0 to keep everything non-empty.
func SplitSentences(input string, minLen int) []string {
	runes := []rune(input)
	sentences := make([]string, 0, 16)
	start := 0
	flush := func(end int) {
		sentence := collapseSpaces(string(runes[start:end]))
		start = end
		if sentence == "" || len(sentence) < minLen {
			return
		}
		sentences = append(sentences, sentence)
	}
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && unicode.IsSpace(runes[i+1]) {
			flush(i + 1)
		}
	}
	if start < len(runes) {
		flush(len(runes))
	}
	return sentences
}

// SplitParagraphs splits on blank lines and keeps paragraphs longer than 40 bytes.
func SplitParagraphs(input string) []string {
	parts := paragraphBreak.Split(strings.ReplaceAll(input, "\r\n", "\n"), -1)
	paragraphs := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if len(part) > 40 {
			paragraphs = append(paragraphs, part)
		}
	}
	return paragraphs
}

// Truncate cuts s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
