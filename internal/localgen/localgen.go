// Package localgen builds study artifacts from the source text alone. Every
// function is deterministic and needs no network access.
package localgen

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/text"
)

const (
	NotEnoughTextMessage = "There is not enough readable text in this document to generate study material yet."

	summarySentences   = 4
	maxFormulas        = 2
	maxFollowUps       = 3
	minTokenLen        = 3
	keywordBonus       = 5
	questionOptionLen  = 140
	flashcardPromptLen = 120
	formulaLen         = 300
	followUpLen        = 200

	FillerBoth = "Both statements are accurate"
	FillerNone = "None of these statements are supported"
)

// corpus is the sentence view of one context shared by all generators.
type corpus struct {
	clean     string
	sentences []string
	scores    []int
}

func newCorpus(context string) *corpus {
	clean := text.Sanitize(context)
	c := &corpus{
		clean:     clean,
		sentences: text.SplitSentences(clean, text.MinSentenceLen),
	}
	freq := make(map[string]int)
	for _, tok := range scoringTokens(clean) {
		freq[tok]++
	}
	c.scores = make([]int, len(c.sentences))
	for i, s := range c.sentences {
		for _, tok := range scoringTokens(s) {
			c.scores[i] += freq[tok]
		}
	}
	return c
}

func scoringTokens(s string) []string {
	tokens := text.Tokenize(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minTokenLen || text.IsStopword(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ExtractiveSummary picks the highest scoring sentences in document order and
// adds formula paragraphs and open questions found in the text.
func ExtractiveSummary(context string) string {
	c := newCorpus(context)
	if len(c.sentences) == 0 {
		return NotEnoughTextMessage
	}
	order := make([]int, len(c.sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c.scores[order[a]] > c.scores[order[b]]
	})
	top := order[:min(summarySentences, len(order))]
	sort.Ints(top)

	var b strings.Builder
	b.WriteString("## Key points\n")
	for _, idx := range top {
		b.WriteString("- ")
		b.WriteString(c.sentences[idx])
		b.WriteString("\n")
	}
	if formulas := formulaParagraphs(context); len(formulas) > 0 {
		b.WriteString("\n## Formulas\n")
		for _, f := range formulas {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	if questions := followUps(c.clean); len(questions) > 0 {
		b.WriteString("\n## Questions to review\n")
		for _, q := range questions {
			b.WriteString("- ")
			b.WriteString(q)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formulaParagraphs(context string) []string {
	out := make([]string, 0, maxFormulas)
	for _, p := range text.SplitParagraphs(context) {
		p = strings.ReplaceAll(text.Sanitize(p), "\n", " ")
		if !strings.ContainsAny(p, "=±×") {
			continue
		}
		out = append(out, text.Truncate(p, formulaLen))
		if len(out) == maxFormulas {
			break
		}
	}
	return out
}

func followUps(clean string) []string {
	out := make([]string, 0, maxFollowUps)
	for _, line := range strings.Split(clean, "\n") {
		if !strings.Contains(line, "?") {
			continue
		}
		out = append(out, text.Truncate(line, followUpLen))
		if len(out) == maxFollowUps {
			break
		}
	}
	return out
}

// ExtractiveAnswer returns the sentence that best matches the question. Each
// question keyword found in a sentence adds a fixed bonus to its base score.
func ExtractiveAnswer(context, question string) string {
	c := newCorpus(context)
	if len(c.sentences) == 0 {
		return ExtractiveSummary(context)
	}
	keywords := text.ExtractKeywords(question)
	bestBlended, bestBlendedScore := -1, -1
	bestBase, bestBaseScore := -1, -1
	for i, s := range c.sentences {
		lowered := strings.ToLower(s)
		bonus := 0
		for _, kw := range keywords {
			if strings.Contains(lowered, kw) {
				bonus += keywordBonus
			}
		}
		if bonus > 0 && c.scores[i]+bonus > bestBlendedScore {
			bestBlended, bestBlendedScore = i, c.scores[i]+bonus
		}
		if c.scores[i] > bestBaseScore {
			bestBase, bestBaseScore = i, c.scores[i]
		}
	}
	if bestBlended >= 0 {
		return c.sentences[bestBlended]
	}
	if bestBase >= 0 {
		return c.sentences[bestBase]
	}
	return ExtractiveSummary(context)
}

// SyntheticQuestions turns sentence i mod N into the correct option of question i,
// with sentence i+1 mod N as the distractor.
func SyntheticQuestions(context string, count int) []model.Question {
	c := newCorpus(context)
	n := len(c.sentences)
	if n == 0 || count <= 0 {
		return []model.Question{}
	}
	out := make([]model.Question, 0, count)
	for i := 0; i < count; i++ {
		source := c.sentences[i%n]
		out = append(out, model.Question{
			ID:     fmt.Sprintf("local-q-%d", i+1),
			Prompt: "Which statement is supported by the study material?",
			Options: []string{
				text.Truncate(source, questionOptionLen),
				text.Truncate(c.sentences[(i+1)%n], questionOptionLen),
				FillerBoth,
				FillerNone,
			},
			AnswerIndex: 0,
			Explanation: fmt.Sprintf("The material states: %q", source),
		})
	}
	return out
}

func SyntheticFlashcards(context string, count int) []model.Flashcard {
	c := newCorpus(context)
	n := len(c.sentences)
	if n == 0 || count <= 0 {
		return []model.Flashcard{}
	}
	out := make([]model.Flashcard, 0, count)
	for i := 0; i < count; i++ {
		source := c.sentences[i%n]
		out = append(out, model.Flashcard{
			ID:     fmt.Sprintf("local-f-%d", i+1),
			Prompt: "Explain this concept: " + text.Truncate(source, flashcardPromptLen),
			Answer: source,
		})
	}
	return out
}
