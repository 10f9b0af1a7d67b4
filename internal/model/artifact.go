package model

type Kind string

const (
	KindSummary    Kind = "summary"
	KindAnswer     Kind = "qa-answer"
	KindExam       Kind = "exam"
	KindFlashcards Kind = "flashcards"
)

func (k Kind) Valid() bool {
	switch k {
	case KindSummary, KindAnswer, KindExam, KindFlashcards:
		return true
	}
	return false
}

const SourceLocal = "local"

// GenerationRequest describes one pipeline invocation. It is never persisted.
type GenerationRequest struct {
	Kind     Kind
	Question string
	Count    int
	Context  string
	Offline  bool
}

type Artifact struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	FileID   string `json:"file_id"`
	Kind     Kind   `json:"kind"`
	Source   string `json:"source"`
	Question string `json:"question,omitempty"`
	Text     string `json:"text,omitempty"`
	Ctime    int64  `json:"ctime"`
}

type ExamAttempt struct {
	ID      string         `json:"id"`
	ExamID  string         `json:"exam_id"`
	UserID  string         `json:"user_id"`
	Records []AnswerRecord `json:"records"`
	Correct int            `json:"correct"`
	Total   int            `json:"total"`
	Ctime   int64          `json:"ctime"`
}
