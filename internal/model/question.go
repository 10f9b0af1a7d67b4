package model

type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// Valid reports whether the answer index addresses one of 2..4 options.
func (q Question) Valid() bool {
	if len(q.Options) < 2 || len(q.Options) > 4 {
		return false
	}
	return q.AnswerIndex >= 0 && q.AnswerIndex < len(q.Options)
}

type Flashcard struct {
	ID     string `json:"id"`
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

type AnswerRecord struct {
	QuestionID    string `json:"question_id"`
	SelectedIndex *int   `json:"selected_index"`
	CorrectIndex  int    `json:"correct_index"`
	IsCorrect     bool   `json:"is_correct"`
}
