package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mstudy/internal/ai"
	"github.com/xxxsen/mstudy/internal/localgen"
	"github.com/xxxsen/mstudy/internal/model"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
)

const studyNotes = `Photosynthesis converts light energy into chemical energy in plants.
Chlorophyll absorbs light mostly in the blue and red wavelengths.
The light reactions of photosynthesis happen in the thylakoid membranes.
The Calvin cycle fixes carbon dioxide into sugars using energy from ATP.
Plants release oxygen as a byproduct of splitting water molecules.`

type memorySource struct {
	docs  map[string]*model.Document
	loads int
}

func newMemorySource(docs ...*model.Document) *memorySource {
	src := &memorySource{docs: make(map[string]*model.Document)}
	for _, d := range docs {
		src.docs[docKey(d.UserID, d.ID)] = d
	}
	return src
}

func docKey(userID, fileID string) string {
	return userID + "/" + fileID
}

func (m *memorySource) Load(ctx context.Context, userID, fileID string) (*model.Document, error) {
	m.loads++
	doc, ok := m.docs[docKey(userID, fileID)]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return doc, nil
}

func (m *memorySource) ListPendingSummaries(ctx context.Context, limit int, maxMtime int64) ([]model.Document, error) {
	out := make([]model.Document, 0, len(m.docs))
	for _, id := range []string{"notes", "blank", "other"} {
		for _, doc := range m.docs {
			if doc.ID == id && len(out) < limit {
				out = append(out, *doc)
			}
		}
	}
	return out, nil
}

type memoryStore struct {
	artifacts []model.Artifact
	questions map[string][]model.Question
	cards     map[string][]model.Flashcard
	attempts  []model.ExamAttempt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{questions: map[string][]model.Question{}, cards: map[string][]model.Flashcard{}}
}

func (m *memoryStore) CreateArtifact(ctx context.Context, art *model.Artifact) error {
	m.artifacts = append(m.artifacts, *art)
	return nil
}

func (m *memoryStore) SaveQuestions(ctx context.Context, artifactID string, questions []model.Question) error {
	m.questions[artifactID] = questions
	return nil
}

func (m *memoryStore) SaveFlashcards(ctx context.Context, artifactID string, cards []model.Flashcard) error {
	m.cards[artifactID] = cards
	return nil
}

func (m *memoryStore) ListQuestions(ctx context.Context, userID, artifactID string) ([]model.Question, error) {
	for _, art := range m.artifacts {
		if art.ID == artifactID && art.UserID == userID {
			return m.questions[artifactID], nil
		}
	}
	return nil, nil
}

func (m *memoryStore) ListByFile(ctx context.Context, userID, fileID string) ([]model.Artifact, error) {
	out := make([]model.Artifact, 0)
	for _, art := range m.artifacts {
		if art.UserID == userID && art.FileID == fileID {
			out = append(out, art)
		}
	}
	return out, nil
}

func (m *memoryStore) CreateAttempt(ctx context.Context, attempt *model.ExamAttempt) error {
	m.attempts = append(m.attempts, *attempt)
	return nil
}

type scriptedProvider struct {
	name    string
	calls   int
	prompts []string
	reply   func(ctx context.Context, req ai.GenerateRequest) (string, error)
}

func (p *scriptedProvider) Name() string {
	return p.name
}

func (p *scriptedProvider) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	p.calls++
	p.prompts = append(p.prompts, req.Prompt)
	return p.reply(ctx, req)
}

func replyWith(name, text string) *scriptedProvider {
	return &scriptedProvider{name: name, reply: func(context.Context, ai.GenerateRequest) (string, error) {
		return text, nil
	}}
}

func failWith(name string, err error) *scriptedProvider {
	return &scriptedProvider{name: name, reply: func(context.Context, ai.GenerateRequest) (string, error) {
		return "", err
	}}
}

func chainOf(providers ...ai.IProvider) *ai.Chain {
	entries := make([]ai.ChainEntry, 0, len(providers))
	for _, p := range providers {
		entries = append(entries, ai.ChainEntry{Provider: p})
	}
	return ai.NewChain(entries)
}

func unavailable(name string) ai.IProvider {
	return failWith(name, &ai.ProviderError{Provider: name, Kind: ai.KindHTTP, Status: 503})
}

func notesDoc() *model.Document {
	return &model.Document{ID: "notes", UserID: "u1", Title: "Biology", Content: studyNotes, Format: model.DocumentFormatText}
}

func newTestService(chain Generator, docs ...*model.Document) (*StudyService, *memorySource, *memoryStore) {
	src := newMemorySource(docs...)
	store := newMemoryStore()
	svc := NewStudyService(src, chain, store, store, StudyConfig{CacheSize: 16, GuidanceMinHits: 1})
	return svc, src, store
}

func questionsJSON(n int) string {
	items := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, map[string]interface{}{
			"question":    fmt.Sprintf("Question %d?", i+1),
			"options":     []string{"alpha", "beta", "gamma", "delta"},
			"answerIndex": i % 4,
			"explanation": "from the notes",
		})
	}
	data, _ := json.Marshal(items)
	return "Here you go:\n```json\n" + string(data) + "\n```"
}

func TestSummarize_ProviderResultIsCached(t *testing.T) {
	p := replyWith("primary", "  Plants turn light into sugar.  ")
	svc, _, store := newTestService(chainOf(p), notesDoc())
	ctx := context.Background()

	res, err := svc.Summarize(ctx, "u1", "notes", Options{})
	require.NoError(t, err)
	require.Equal(t, "Plants turn light into sugar.", res.Text)
	require.Equal(t, "provider:primary", res.Source)
	require.False(t, res.Fallback)
	require.NotEmpty(t, res.ArtifactID)
	require.Len(t, store.artifacts, 1)
	require.Equal(t, model.KindSummary, store.artifacts[0].Kind)

	again, err := svc.Summarize(ctx, "u1", "notes", Options{})
	require.NoError(t, err)
	require.Equal(t, res, again)
	require.Equal(t, 1, p.calls)
	require.Len(t, store.artifacts, 1)

	offline, err := svc.Summarize(ctx, "u1", "notes", Options{Offline: true})
	require.NoError(t, err)
	require.Equal(t, model.SourceLocal, offline.Source)
	require.True(t, offline.Fallback)
	require.True(t, strings.HasSuffix(offline.Text, FallbackNotice))
	require.Equal(t, 1, p.calls)
}

func TestSummarize_ExhaustedChainFallsBackToLocal(t *testing.T) {
	a, b := unavailable("a"), unavailable("b")
	svc, _, store := newTestService(chainOf(a, b), notesDoc())
	res, err := svc.Summarize(context.Background(), "u1", "notes", Options{})
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.Equal(t, model.SourceLocal, res.Source)
	require.Contains(t, res.Text, "## Key points")
	require.True(t, strings.HasSuffix(res.Text, "\n\n"+FallbackNotice))
	require.Len(t, store.artifacts, 1)
	require.Equal(t, model.SourceLocal, store.artifacts[0].Source)
}

func TestSummarize_AbortedChainFallsBackToLocal(t *testing.T) {
	first := failWith("broken", errors.New("unexpected payload"))
	second := replyWith("never", "unused")
	svc, _, _ := newTestService(chainOf(first, second), notesDoc())
	res, err := svc.Summarize(context.Background(), "u1", "notes", Options{})
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.Equal(t, 0, second.calls)
}

func TestSummarize_CancelledContextReturnsError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &scriptedProvider{name: "slow", reply: func(ctx context.Context, _ ai.GenerateRequest) (string, error) {
		cancel()
		return "", ctx.Err()
	}}
	svc, _, store := newTestService(chainOf(p), notesDoc())
	_, err := svc.Summarize(ctx, "u1", "notes", Options{})
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, store.artifacts)
}

func TestStudyService_InputErrors(t *testing.T) {
	empty := &model.Document{ID: "empty", UserID: "u1", Content: "https://example.com/download\n\n  share this  "}
	svc, _, _ := newTestService(chainOf(replyWith("a", "x")), notesDoc(), empty)
	ctx := context.Background()

	_, err := svc.Summarize(ctx, "u1", " ", Options{})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = svc.Summarize(ctx, "u1", "missing", Options{})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Summarize(ctx, "u2", "notes", Options{})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Summarize(ctx, "u1", "empty", Options{})
	require.ErrorIs(t, err, appErr.ErrEmptySource)
	require.True(t, appErr.IsInvalid(err))

	_, err = svc.Answer(ctx, "u1", "notes", "   ", Options{})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	for _, count := range []int{0, 5, 15, 40} {
		_, err = svc.GenerateExam(ctx, "u1", "notes", count, Options{})
		require.ErrorIs(t, err, appErr.ErrInvalid, "count %d", count)
	}
	for _, count := range []int{-1, 4, 31} {
		_, err = svc.GenerateFlashcards(ctx, "u1", "notes", count, Options{})
		require.ErrorIs(t, err, appErr.ErrInvalid, "count %d", count)
	}
}

func TestAnswer_SmallTalkSkipsPipeline(t *testing.T) {
	p := replyWith("a", "unused")
	svc, src, store := newTestService(chainOf(p), notesDoc())
	for _, q := range []string{"hi", "Hello!", "thanks", "Thank you.", "good morning"} {
		res, err := svc.Answer(context.Background(), "u1", "notes", q, Options{})
		require.NoError(t, err)
		require.Equal(t, SmallTalkReply, res.Text)
	}
	require.Equal(t, 0, src.loads)
	require.Equal(t, 0, p.calls)
	require.Empty(t, store.artifacts)
}

func TestIsSmallTalk(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"hi", true},
		{"Hey, thanks!", true},
		{"hello there", false},
		{"what is ATP?", false},
		{"", false},
		{"??", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsSmallTalk(tt.in), tt.in)
	}
}

func TestAnswer_GuidanceWhenNotesMissTheQuestion(t *testing.T) {
	p := replyWith("a", "Volcanoes erupt when magma pressure builds.")
	svc, _, _ := newTestService(chainOf(p), notesDoc())
	res, err := svc.Answer(context.Background(), "u1", "notes", "How do volcanoes erupt?", Options{})
	require.NoError(t, err)
	require.Equal(t, "Volcanoes erupt when magma pressure builds.\n\n"+GuidanceNotice, res.Text)
	require.Contains(t, p.prompts[0], "only partly covers")

	res, err = svc.Answer(context.Background(), "u1", "notes", "What does the Calvin cycle produce?", Options{})
	require.NoError(t, err)
	require.NotContains(t, res.Text, GuidanceNotice)
	require.Contains(t, p.prompts[1], "using only the study material")
}

func TestAnswer_LocalFallbackPicksMatchingSentence(t *testing.T) {
	svc, _, store := newTestService(nil, notesDoc())
	res, err := svc.Answer(context.Background(), "u1", "notes", "Where does the Calvin cycle fix carbon?", Options{})
	require.NoError(t, err)
	require.True(t, res.Fallback)
	require.True(t, strings.HasPrefix(res.Text, "The Calvin cycle fixes carbon dioxide into sugars using energy from ATP."))
	require.True(t, strings.HasSuffix(res.Text, FallbackNotice))
	require.Len(t, store.artifacts, 1)
	require.Equal(t, "Where does the Calvin cycle fix carbon?", store.artifacts[0].Question)
}

func TestGenerateExam_NormalizesAndGrades(t *testing.T) {
	p := replyWith("a", questionsJSON(12))
	svc, _, store := newTestService(chainOf(p), notesDoc())
	ctx := context.Background()

	exam, err := svc.GenerateExam(ctx, "u1", "notes", 10, Options{})
	require.NoError(t, err)
	require.Equal(t, "provider:a", exam.Source)
	require.Len(t, exam.Questions, 10)
	require.NotEmpty(t, exam.ArtifactID)
	require.Equal(t, exam.Questions, store.questions[exam.ArtifactID])
	for _, q := range exam.Questions {
		require.True(t, q.Valid())
	}

	selections := map[string]*int{}
	for i, q := range exam.Questions[:4] {
		idx := q.AnswerIndex
		if i == 3 {
			idx = (idx + 1) % len(q.Options)
		}
		selections[q.ID] = &idx
	}
	grade, err := svc.Grade(ctx, "u1", exam.ArtifactID, selections)
	require.NoError(t, err)
	require.Equal(t, 3, grade.Correct)
	require.Equal(t, 10, grade.Total)
	require.Len(t, grade.Records, 10)
	require.True(t, grade.Records[0].IsCorrect)
	require.False(t, grade.Records[3].IsCorrect)
	require.Nil(t, grade.Records[9].SelectedIndex)
	require.Equal(t, exam.Questions[9].AnswerIndex, grade.Records[9].CorrectIndex)
	require.Len(t, store.attempts, 1)
	require.Equal(t, grade.AttemptID, store.attempts[0].ID)

	_, err = svc.Grade(ctx, "u2", exam.ArtifactID, selections)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Grade(ctx, "u1", "", selections)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestGenerateExam_CacheIsPerUser(t *testing.T) {
	p := replyWith("a", questionsJSON(10))
	other := notesDoc()
	other.UserID = "u2"
	svc, _, store := newTestService(chainOf(p), notesDoc(), other)
	ctx := context.Background()

	first, err := svc.GenerateExam(ctx, "u1", "notes", 10, Options{})
	require.NoError(t, err)
	second, err := svc.GenerateExam(ctx, "u2", "notes", 10, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, p.calls)
	require.NotEqual(t, first.ArtifactID, second.ArtifactID)
	require.Len(t, store.artifacts, 2)

	zero := 0
	grade, err := svc.Grade(ctx, "u2", second.ArtifactID, map[string]*int{second.Questions[0].ID: &zero})
	require.NoError(t, err)
	require.Equal(t, 10, grade.Total)

	again, err := svc.GenerateExam(ctx, "u1", "notes", 10, Options{})
	require.NoError(t, err)
	require.Equal(t, first.ArtifactID, again.ArtifactID)
	require.Equal(t, 2, p.calls)
}

func TestGenerateExam_MalformedResponseAdvancesChain(t *testing.T) {
	first := replyWith("chatty", "Sorry, I can only chat about the weather.")
	second := replyWith("strict", questionsJSON(3))
	svc, _, _ := newTestService(chainOf(first, second), notesDoc())
	exam, err := svc.GenerateExam(context.Background(), "u1", "notes", 20, Options{})
	require.NoError(t, err)
	require.Equal(t, "provider:strict", exam.Source)
	require.Len(t, exam.Questions, 3)
	require.Equal(t, 1, first.calls)
}

func TestGenerateExam_LocalFallback(t *testing.T) {
	svc, _, store := newTestService(chainOf(unavailable("a")), notesDoc())
	exam, err := svc.GenerateExam(context.Background(), "u1", "notes", 10, Options{})
	require.NoError(t, err)
	require.True(t, exam.Fallback)
	require.Equal(t, model.SourceLocal, exam.Source)
	require.Len(t, exam.Questions, 10)
	require.Equal(t, "local-q-1", exam.Questions[0].ID)
	for _, q := range exam.Questions {
		require.True(t, q.Valid())
		require.Equal(t, 0, q.AnswerIndex)
	}
	require.Len(t, store.questions[exam.ArtifactID], 10)
}

func TestGenerateFlashcards(t *testing.T) {
	deck := `{"flashcards": [{"front": "ATP", "back": "Energy currency of the cell."}, {"front": "", "back": "dropped"}]}`
	svc, _, store := newTestService(chainOf(replyWith("a", deck)), notesDoc())
	res, err := svc.GenerateFlashcards(context.Background(), "u1", "notes", 5, Options{})
	require.NoError(t, err)
	require.Equal(t, "provider:a", res.Source)
	require.Len(t, res.Cards, 1)
	require.Equal(t, "ATP", res.Cards[0].Prompt)
	require.Equal(t, res.Cards, store.cards[res.ArtifactID])

	local, err := svc.GenerateFlashcards(context.Background(), "u1", "notes", 7, Options{Offline: true})
	require.NoError(t, err)
	require.True(t, local.Fallback)
	require.Len(t, local.Cards, 7)
	require.Equal(t, localgen.SyntheticFlashcards(studyNotes, 7), local.Cards)

	arts, err := svc.ListArtifacts(context.Background(), "u1", "notes")
	require.NoError(t, err)
	require.Len(t, arts, 2)
}

func TestPrefetchSummaries(t *testing.T) {
	blank := &model.Document{ID: "blank", UserID: "u1", Content: "www.example.com"}
	p := replyWith("a", "Summary of the notes.")
	svc, src, store := newTestService(chainOf(p), notesDoc(), blank)
	require.NoError(t, svc.PrefetchSummaries(context.Background(), src, 10, 0))
	require.Len(t, store.artifacts, 2)
	byFile := map[string]model.Artifact{}
	for _, art := range store.artifacts {
		byFile[art.FileID] = art
	}
	require.Equal(t, "Summary of the notes.", byFile["notes"].Text)
	require.Equal(t, "provider:a", byFile["notes"].Source)
	require.Equal(t, localgen.NotEnoughTextMessage, byFile["blank"].Text)

	down, src2, store2 := newTestService(chainOf(unavailable("a")), notesDoc())
	require.NoError(t, down.PrefetchSummaries(context.Background(), src2, 10, 0))
	require.Empty(t, store2.artifacts)
}
