package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mstudy/internal/ai"
	"github.com/xxxsen/mstudy/internal/localgen"
	"github.com/xxxsen/mstudy/internal/model"
	"github.com/xxxsen/mstudy/internal/normalize"
	appErr "github.com/xxxsen/mstudy/internal/pkg/errors"
	"github.com/xxxsen/mstudy/internal/pkg/timeutil"
	"github.com/xxxsen/mstudy/internal/text"
)

const (
	FallbackNotice = "Note: no AI provider was reachable, so this was generated offline from your document."
	GuidanceNotice = "Note: your document does not cover this question directly, so this answer includes general guidance."
	SmallTalkReply = "Hi! Ask me a question about this document and I will answer from it."

	MinDeckCount = 5
	MaxDeckCount = 30
)

var examCounts = map[int]bool{10: true, 20: true, 30: true}

var smallTalkWords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "yo": true, "hiya": true,
	"thanks": true, "thank": true, "you": true, "thx": true, "ty": true,
	"ok": true, "okay": true, "cool": true, "great": true, "bye": true, "goodbye": true,
	"good": true, "morning": true, "afternoon": true, "evening": true, "night": true,
}

type DocumentSource interface {
	Load(ctx context.Context, userID, fileID string) (*model.Document, error)
}

type ArtifactStore interface {
	CreateArtifact(ctx context.Context, art *model.Artifact) error
	SaveQuestions(ctx context.Context, artifactID string, questions []model.Question) error
	SaveFlashcards(ctx context.Context, artifactID string, cards []model.Flashcard) error
	ListQuestions(ctx context.Context, userID, artifactID string) ([]model.Question, error)
	ListByFile(ctx context.Context, userID, fileID string) ([]model.Artifact, error)
}

type AttemptStore interface {
	CreateAttempt(ctx context.Context, attempt *model.ExamAttempt) error
}

// Generator is satisfied by *ai.Chain.
type Generator interface {
	RunWith(ctx context.Context, prompt, system string, accept func(string) error) (*ai.Result, error)
}

// StudyConfig tunes the pipeline. GuidanceMinHits <= 0 disables the guidance
// prompt; CacheSize <= 0 disables the result cache.
type StudyConfig struct {
	ContextLimit    int
	CacheSize       int
	CacheTTL        time.Duration
	GuidanceMinHits int
}

type Options struct {
	Offline bool
}

type TextResult struct {
	ArtifactID string `json:"artifact_id"`
	Text       string `json:"text"`
	Source     string `json:"source"`
	Fallback   bool   `json:"fallback"`
}

type ExamResult struct {
	ArtifactID string           `json:"artifact_id"`
	Questions  []model.Question `json:"questions"`
	Source     string           `json:"source"`
	Fallback   bool             `json:"fallback"`
}

type DeckResult struct {
	ArtifactID string            `json:"artifact_id"`
	Cards      []model.Flashcard `json:"cards"`
	Source     string            `json:"source"`
	Fallback   bool              `json:"fallback"`
}

type GradeResult struct {
	AttemptID string               `json:"attempt_id"`
	Records   []model.AnswerRecord `json:"records"`
	Correct   int                  `json:"correct"`
	Total     int                  `json:"total"`
}

type cacheEntry struct {
	artifactID string
	text       string
	questions  []model.Question
	cards      []model.Flashcard
	source     string
}

type StudyService struct {
	docs      DocumentSource
	chain     Generator
	artifacts ArtifactStore
	attempts  AttemptStore
	cache     *expirable.LRU[string, *cacheEntry]
	cfg       StudyConfig
}

func NewStudyService(docs DocumentSource, chain Generator, artifacts ArtifactStore, attempts AttemptStore, cfg StudyConfig) *StudyService {
	if cfg.ContextLimit <= 0 {
		cfg.ContextLimit = text.DefaultContextLimit
	}
	s := &StudyService{
		docs:      docs,
		chain:     chain,
		artifacts: artifacts,
		attempts:  attempts,
		cfg:       cfg,
	}
	if cfg.CacheSize > 0 {
		ttl := cfg.CacheTTL
		if ttl <= 0 {
			ttl = 2 * time.Hour
		}
		s.cache = expirable.NewLRU[string, *cacheEntry](cfg.CacheSize, nil, ttl)
	}
	return s
}

func (s *StudyService) Summarize(ctx context.Context, userID, fileID string, opts Options) (*TextResult, error) {
	doc, content, err := s.loadText(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	return s.summarizeDocument(ctx, userID, doc.ID, content, opts, false)
}

// summarizeDocument runs the summary pipeline on already loaded text. With
// providerOnly set a local fallback result is returned but not persisted.
func (s *StudyService) summarizeDocument(ctx context.Context, userID, fileID, content string, opts Options, providerOnly bool) (*TextResult, error) {
	window := text.SelectContext(content, "", s.cfg.ContextLimit)
	key := cacheKey(model.KindSummary, userID, fileID, "", 0, window.Text)
	if entry, ok := s.cached(key, opts); ok {
		return &TextResult{ArtifactID: entry.artifactID, Text: entry.text, Source: entry.source}, nil
	}
	out, source, ok, err := s.tryProviders(ctx, model.KindSummary, ai.SummaryPrompt(window.Text), nil, opts)
	if err != nil {
		return nil, err
	}
	if !ok {
		res := &TextResult{
			Text:     withNotice(localgen.ExtractiveSummary(window.Text), FallbackNotice),
			Source:   model.SourceLocal,
			Fallback: true,
		}
		if !providerOnly {
			s.persistText(ctx, userID, fileID, model.KindSummary, "", res)
		}
		return res, nil
	}
	res := &TextResult{Text: strings.TrimSpace(out), Source: source}
	s.persistText(ctx, userID, fileID, model.KindSummary, "", res)
	s.remember(key, opts, &cacheEntry{artifactID: res.ArtifactID, text: res.Text, source: source})
	return res, nil
}

func (s *StudyService) Answer(ctx context.Context, userID, fileID, question string, opts Options) (*TextResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", appErr.ErrInvalid)
	}
	if IsSmallTalk(question) {
		return &TextResult{Text: SmallTalkReply, Source: model.SourceLocal}, nil
	}
	doc, content, err := s.loadText(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	window := text.SelectContext(content, question, s.cfg.ContextLimit)
	key := cacheKey(model.KindAnswer, userID, doc.ID, question, 0, window.Text)
	if entry, ok := s.cached(key, opts); ok {
		return &TextResult{ArtifactID: entry.artifactID, Text: entry.text, Source: entry.source}, nil
	}
	guidance := window.Hits < s.cfg.GuidanceMinHits
	out, source, ok, err := s.tryProviders(ctx, model.KindAnswer, ai.AnswerPrompt(window.Text, question, guidance), nil, opts)
	if err != nil {
		return nil, err
	}
	var res *TextResult
	if ok {
		answer := strings.TrimSpace(out)
		if guidance {
			answer = withNotice(answer, GuidanceNotice)
		}
		res = &TextResult{Text: answer, Source: source}
	} else {
		res = &TextResult{
			Text:     withNotice(localgen.ExtractiveAnswer(window.Text, question), FallbackNotice),
			Source:   model.SourceLocal,
			Fallback: true,
		}
	}
	s.persistText(ctx, userID, doc.ID, model.KindAnswer, question, res)
	if ok {
		s.remember(key, opts, &cacheEntry{artifactID: res.ArtifactID, text: res.Text, source: source})
	}
	return res, nil
}

func (s *StudyService) GenerateExam(ctx context.Context, userID, fileID string, count int, opts Options) (*ExamResult, error) {
	if !examCounts[count] {
		return nil, fmt.Errorf("exam count must be 10, 20 or 30: %w", appErr.ErrInvalid)
	}
	doc, content, err := s.loadText(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	window := text.SelectContext(content, "", s.cfg.ContextLimit)
	key := cacheKey(model.KindExam, userID, doc.ID, "", count, window.Text)
	if entry, ok := s.cached(key, opts); ok {
		return &ExamResult{ArtifactID: entry.artifactID, Questions: entry.questions, Source: entry.source}, nil
	}
	accept := func(raw string) error {
		if len(normalize.NormalizeQuestions(normalize.ParseItems(raw), count)) == 0 {
			return errors.New("no valid questions in response")
		}
		return nil
	}
	out, source, ok, err := s.tryProviders(ctx, model.KindExam, ai.ExamPrompt(window.Text, count), accept, opts)
	if err != nil {
		return nil, err
	}
	res := &ExamResult{Source: source}
	if ok {
		res.Questions = normalize.NormalizeQuestions(normalize.ParseItems(out), count)
	} else {
		res.Questions = localgen.SyntheticQuestions(window.Text, count)
		res.Source = model.SourceLocal
		res.Fallback = true
	}
	res.ArtifactID = s.persistArtifact(ctx, &model.Artifact{UserID: userID, FileID: doc.ID, Kind: model.KindExam, Source: res.Source}, func(id string) error {
		return s.artifacts.SaveQuestions(ctx, id, res.Questions)
	})
	if ok {
		s.remember(key, opts, &cacheEntry{artifactID: res.ArtifactID, questions: res.Questions, source: source})
	}
	return res, nil
}

func (s *StudyService) GenerateFlashcards(ctx context.Context, userID, fileID string, count int, opts Options) (*DeckResult, error) {
	if count < MinDeckCount || count > MaxDeckCount {
		return nil, fmt.Errorf("flashcard count must be between %d and %d: %w", MinDeckCount, MaxDeckCount, appErr.ErrInvalid)
	}
	doc, content, err := s.loadText(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	window := text.SelectContext(content, "", s.cfg.ContextLimit)
	key := cacheKey(model.KindFlashcards, userID, doc.ID, "", count, window.Text)
	if entry, ok := s.cached(key, opts); ok {
		return &DeckResult{ArtifactID: entry.artifactID, Cards: entry.cards, Source: entry.source}, nil
	}
	accept := func(raw string) error {
		if len(normalize.NormalizeFlashcards(normalize.ParseItems(raw), count)) == 0 {
			return errors.New("no valid flashcards in response")
		}
		return nil
	}
	out, source, ok, err := s.tryProviders(ctx, model.KindFlashcards, ai.FlashcardPrompt(window.Text, count), accept, opts)
	if err != nil {
		return nil, err
	}
	res := &DeckResult{Source: source}
	if ok {
		res.Cards = normalize.NormalizeFlashcards(normalize.ParseItems(out), count)
	} else {
		res.Cards = localgen.SyntheticFlashcards(window.Text, count)
		res.Source = model.SourceLocal
		res.Fallback = true
	}
	res.ArtifactID = s.persistArtifact(ctx, &model.Artifact{UserID: userID, FileID: doc.ID, Kind: model.KindFlashcards, Source: res.Source}, func(id string) error {
		return s.artifacts.SaveFlashcards(ctx, id, res.Cards)
	})
	if ok {
		s.remember(key, opts, &cacheEntry{artifactID: res.ArtifactID, cards: res.Cards, source: source})
	}
	return res, nil
}

// Grade scores the selections against a stored exam. Questions without a
// selection count as wrong.
func (s *StudyService) Grade(ctx context.Context, userID, examID string, selections map[string]*int) (*GradeResult, error) {
	examID = strings.TrimSpace(examID)
	if examID == "" {
		return nil, fmt.Errorf("exam id is required: %w", appErr.ErrInvalid)
	}
	if s.artifacts == nil {
		return nil, appErr.ErrNotFound
	}
	questions, err := s.artifacts.ListQuestions(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, appErr.ErrNotFound
	}
	res := &GradeResult{Records: make([]model.AnswerRecord, 0, len(questions)), Total: len(questions)}
	for _, q := range questions {
		selected := selections[q.ID]
		record := model.AnswerRecord{
			QuestionID:    q.ID,
			SelectedIndex: selected,
			CorrectIndex:  q.AnswerIndex,
			IsCorrect:     selected != nil && *selected == q.AnswerIndex,
		}
		if record.IsCorrect {
			res.Correct++
		}
		res.Records = append(res.Records, record)
	}
	if s.attempts != nil {
		attempt := &model.ExamAttempt{
			ID:      newID(),
			ExamID:  examID,
			UserID:  userID,
			Records: res.Records,
			Correct: res.Correct,
			Total:   res.Total,
			Ctime:   timeutil.NowUnix(),
		}
		if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
			logutil.GetLogger(ctx).Error("save exam attempt failed", zap.String("exam_id", examID), zap.Error(err))
		} else {
			res.AttemptID = attempt.ID
		}
	}
	return res, nil
}

func (s *StudyService) ListArtifacts(ctx context.Context, userID, fileID string) ([]model.Artifact, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, fmt.Errorf("file id is required: %w", appErr.ErrInvalid)
	}
	if s.artifacts == nil {
		return []model.Artifact{}, nil
	}
	return s.artifacts.ListByFile(ctx, userID, fileID)
}

func (s *StudyService) loadText(ctx context.Context, userID, fileID string) (*model.Document, string, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, "", fmt.Errorf("file id is required: %w", appErr.ErrInvalid)
	}
	if s.docs == nil {
		return nil, "", appErr.ErrNotFound
	}
	doc, err := s.docs.Load(ctx, userID, fileID)
	if err != nil {
		return nil, "", err
	}
	content := text.Sanitize(text.DocumentText(doc.Content, doc.Format))
	if content == "" {
		return nil, "", appErr.ErrEmptySource
	}
	return doc, content, nil
}

// tryProviders reports ok=false when the caller should generate locally. The
// error is set only when the caller's context ended.
func (s *StudyService) tryProviders(ctx context.Context, kind model.Kind, prompt string, accept func(string) error, opts Options) (string, string, bool, error) {
	if opts.Offline || s.chain == nil {
		return "", "", false, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("kind", string(kind)))
	res, err := s.chain.RunWith(ctx, prompt, ai.SystemPrompt, accept)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", false, err
		}
		var abort *ai.ChainAbortError
		if errors.As(err, &abort) {
			logger.Error("provider chain aborted, using local generator", zap.String("provider", abort.Provider), zap.Error(abort.Err))
			return "", "", false, nil
		}
		return "", "", false, err
	}
	if res.Outcome != ai.OutcomeSuccess {
		logger.Warn("all providers failed, using local generator", zap.Int("attempts", len(res.Attempts)))
		return "", "", false, nil
	}
	return res.Text, "provider:" + res.Provider, true, nil
}

func (s *StudyService) cached(key string, opts Options) (*cacheEntry, bool) {
	if s.cache == nil || opts.Offline {
		return nil, false
	}
	return s.cache.Get(key)
}

// remember is only called with provider output.
func (s *StudyService) remember(key string, opts Options, entry *cacheEntry) {
	if s.cache == nil || opts.Offline {
		return
	}
	s.cache.Add(key, entry)
}

func (s *StudyService) persistText(ctx context.Context, userID, fileID string, kind model.Kind, question string, res *TextResult) {
	res.ArtifactID = s.persistArtifact(ctx, &model.Artifact{
		UserID:   userID,
		FileID:   fileID,
		Kind:     kind,
		Source:   res.Source,
		Question: question,
		Text:     res.Text,
	}, nil)
}

// persistArtifact stores the artifact header and its records. Failures are logged
// and the generated result is still returned to the caller.
func (s *StudyService) persistArtifact(ctx context.Context, art *model.Artifact, records func(id string) error) string {
	if s.artifacts == nil {
		return ""
	}
	art.ID = newID()
	art.Ctime = timeutil.NowUnix()
	logger := logutil.GetLogger(ctx).With(zap.String("file_id", art.FileID), zap.String("kind", string(art.Kind)))
	if err := s.artifacts.CreateArtifact(ctx, art); err != nil {
		logger.Error("save artifact failed", zap.Error(err))
		return ""
	}
	if records != nil {
		if err := records(art.ID); err != nil {
			logger.Error("save artifact records failed", zap.String("artifact_id", art.ID), zap.Error(err))
		}
	}
	return art.ID
}

// IsSmallTalk reports whether the question is only a greeting or a thank-you.
func IsSmallTalk(question string) bool {
	tokens := text.Tokenize(question)
	if len(tokens) == 0 || len(tokens) > 4 {
		return false
	}
	for _, tok := range tokens {
		if !smallTalkWords[tok] {
			return false
		}
	}
	return true
}

func withNotice(body, notice string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return notice
	}
	return body + "\n\n" + notice
}

// cacheKey scopes entries to the user since artifact ids are only visible to
// their owner.
func cacheKey(kind model.Kind, userID, fileID, question string, count int, context string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d\x00", kind, userID, fileID, question, count)
	h.Write([]byte(context))
	return hex.EncodeToString(h.Sum(nil))
}
