package ai

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent with every generation request.
const SystemPrompt = "You are a careful study assistant. Use only the supplied material unless told otherwise and keep the language of the material."

func SummaryPrompt(context string) string {
	return fmt.Sprintf(`Summarize the study material below for a student.
- Start with a short overview paragraph.
- Follow with the key points as a markdown bullet list.
- Keep formulas and definitions exact.
- Output ONLY the summary.

MATERIAL:
%s`, context)
}

// AnswerPrompt asks for an answer grounded in the material. With guidance set the
// material barely touches the question, so general knowledge is allowed.
func AnswerPrompt(context, question string, guidance bool) string {
	if guidance {
		return fmt.Sprintf(`A student asked a question that the study material below only partly covers.
- Give general guidance that helps them answer it themselves.
- Mention which parts of the material are related, if any.
- Keep it under 200 words.

QUESTION:
%s

MATERIAL:
%s`, strings.TrimSpace(question), context)
	}
	return fmt.Sprintf(`Answer the question using only the study material below.
- Quote or paraphrase the relevant passage.
- If the material does not contain the answer, say so.
- Keep it under 200 words.

QUESTION:
%s

MATERIAL:
%s`, strings.TrimSpace(question), context)
}

func ExamPrompt(context string, count int) string {
	return fmt.Sprintf(`Write %d multiple choice questions about the study material below.
Return a JSON array only. No extra text. Each element:
{"question": "...", "options": ["...", "...", "...", "..."], "answerIndex": 0, "explanation": "..."}
- Exactly 4 options per question, one of them correct.
- answerIndex is the zero based index of the correct option.
- The explanation cites the material.

MATERIAL:
%s`, count, context)
}

func FlashcardPrompt(context string, count int) string {
	return fmt.Sprintf(`Write %d flashcards about the study material below.
Return a JSON array only. No extra text. Each element:
{"front": "...", "back": "..."}
- front is a term or a short question.
- back is a one or two sentence answer taken from the material.

MATERIAL:
%s`, count, context)
}
