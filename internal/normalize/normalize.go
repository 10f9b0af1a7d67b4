package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/xxxsen/mstudy/internal/model"
)

const MaxOptions = 4

var (
	promptKeys      = []string{"prompt", "question"}
	optionKeys      = []string{"options", "choices"}
	answerIndexKeys = []string{"answerIndex", "answer_index", "correctOption"}
	explanationKeys = []string{"explanation", "rationale"}
	frontKeys       = []string{"prompt", "front", "question", "term"}
	backKeys        = []string{"answer", "back", "definition"}
)

// NormalizeQuestions keeps only items that form a valid question and never
// returns more than expected of them.
func NormalizeQuestions(items []map[string]interface{}, expected int) []model.Question {
	out := make([]model.Question, 0, max(0, min(expected, len(items))))
	if expected <= 0 {
		return out
	}
	for _, item := range items {
		if len(out) >= expected {
			break
		}
		q, ok := toQuestion(item)
		if !ok {
			continue
		}
		out = append(out, q)
	}
	return out
}

func toQuestion(item map[string]interface{}) (model.Question, bool) {
	prompt := firstString(item, promptKeys)
	if prompt == "" {
		return model.Question{}, false
	}
	var options []string
	var positions []int
	for _, key := range optionKeys {
		if v, ok := item[key]; ok {
			options, positions = toOptions(v)
			break
		}
	}
	if len(options) < 2 {
		return model.Question{}, false
	}
	raw, ok := firstIndex(item)
	if !ok {
		return model.Question{}, false
	}
	// the index refers to the option list as sent, before empty entries were dropped
	idx := -1
	for i, pos := range positions {
		if pos == raw {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= MaxOptions {
		return model.Question{}, false
	}
	if len(options) > MaxOptions {
		options = options[:MaxOptions]
	}
	q := model.Question{
		ID:          itemID(item),
		Prompt:      prompt,
		Options:     options,
		AnswerIndex: idx,
		Explanation: firstString(item, explanationKeys),
	}
	return q, q.Valid()
}

// NormalizeFlashcards drops cards with an empty side and caps the result at expected.
func NormalizeFlashcards(items []map[string]interface{}, expected int) []model.Flashcard {
	out := make([]model.Flashcard, 0, max(0, min(expected, len(items))))
	if expected <= 0 {
		return out
	}
	for _, item := range items {
		if len(out) >= expected {
			break
		}
		prompt := firstString(item, frontKeys)
		answer := firstString(item, backKeys)
		if prompt == "" || answer == "" {
			continue
		}
		out = append(out, model.Flashcard{ID: itemID(item), Prompt: prompt, Answer: answer})
	}
	return out
}

func itemID(item map[string]interface{}) string {
	if id := toString(item["id"]); id != "" {
		return id
	}
	return uuid.NewString()
}

func firstString(item map[string]interface{}, keys []string) string {
	for _, key := range keys {
		if s := toString(item[key]); s != "" {
			return s
		}
	}
	return ""
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// toOptions returns the non-empty options and, for each, its position in the
// original list.
func toOptions(v interface{}) ([]string, []int) {
	arr, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(arr))
	positions := make([]int, 0, len(arr))
	for i, item := range arr {
		var s string
		if m, ok := item.(map[string]interface{}); ok {
			s = toString(m["text"])
		} else {
			s = toString(item)
		}
		if s != "" {
			out = append(out, s)
			positions = append(positions, i)
		}
	}
	return out, positions
}

func firstIndex(item map[string]interface{}) (int, bool) {
	for _, key := range answerIndexKeys {
		if idx, ok := toIndex(item[key]); ok {
			return idx, true
		}
	}
	return 0, false
}

// toIndex accepts an integral number, a numeric string or a single letter A-D.
func toIndex(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || t < 0 || t > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case json.Number:
		n, err := t.Int64()
		if err != nil || n < 0 || n > math.MaxInt32 {
			return 0, false
		}
		return int(n), true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, n >= 0
		}
		if len(s) == 1 {
			c := s[0] | 0x20
			if c >= 'a' && c <= 'd' {
				return int(c - 'a'), true
			}
		}
	}
	return 0, false
}
