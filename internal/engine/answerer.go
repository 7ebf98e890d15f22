package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// NotFoundAnswer is returned when no passage clears the relevance floor
const NotFoundAnswer = "К сожалению, я не нашёл подходящей информации в базе знаний " +
	"по вашему вопросу. Давайте я передам ваш вопрос оператору " +
	"техподдержки — он сможет помочь более детально."

// Options tunes retrieval and the escalation threshold
type Options struct {
	TopK                int
	MinRelevance        float64
	ConfidenceThreshold float64
}

// Answer is a generated answer with its escalation verdict
type Answer struct {
	Text            string
	Confidence      float64
	Reason          string
	NeedsEscalation bool
	SourceArticles  []string
	YouTubeLinks    []string
}

// Answerer runs retrieval and generation against a backend
type Answerer struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

// NewAnswerer creates an answerer
func NewAnswerer(backend Backend, opts Options, logger *zap.Logger) *Answerer {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Answerer{backend: backend, opts: opts, logger: logger}
}

// Search retrieves passages for a query and drops those under the relevance floor
func (a *Answerer) Search(ctx context.Context, query, articleID string) ([]Passage, error) {
	results, err := a.backend.Retrieve(ctx, RetrieveRequest{
		Query:     query,
		TopK:      a.opts.TopK,
		ArticleID: articleID,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	filtered := make([]Passage, 0, len(results))
	for _, p := range results {
		if p.Score >= a.opts.MinRelevance {
			filtered = append(filtered, p)
		}
	}

	a.logger.Debug("knowledge base search",
		zap.Int("found", len(results)),
		zap.Int("relevant", len(filtered)),
		zap.String("article_id", articleID),
	)
	return filtered, nil
}

// Answer generates an answer grounded on passages. With no passages the
// canned not-found answer is returned and escalation is requested.
func (a *Answerer) Answer(ctx context.Context, question string, passages []Passage, history []Message) (*Answer, error) {
	if len(passages) == 0 {
		return &Answer{
			Text:            NotFoundAnswer,
			Confidence:      0,
			Reason:          "no relevant articles",
			NeedsEscalation: true,
			SourceArticles:  []string{},
			YouTubeLinks:    []string{},
		}, nil
	}

	raw, err := a.backend.Generate(ctx, GenerateRequest{
		Question: question,
		Passages: passages,
		History:  LastTurns(history, HistoryTurns),
	})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	text, assessment := ParseConfidence(raw)
	if !assessment.Found {
		a.logger.Warn("model output has no confidence block", zap.Int("length", len(raw)))
	}

	sources, links := collectReferences(passages)
	return &Answer{
		Text:            text,
		Confidence:      assessment.Confidence,
		Reason:          assessment.Reason,
		NeedsEscalation: assessment.Confidence < a.opts.ConfidenceThreshold,
		SourceArticles:  sources,
		YouTubeLinks:    links,
	}, nil
}

// Stats reports knowledge base size
func (a *Answerer) Stats(ctx context.Context) (*domain.KnowledgeBaseStats, error) {
	return a.backend.Stats(ctx)
}

// collectReferences returns the distinct article ids and video links in passage order
func collectReferences(passages []Passage) ([]string, []string) {
	sources := []string{}
	links := []string{}
	seenArticle := make(map[string]bool)
	seenLink := make(map[string]bool)

	for _, p := range passages {
		if p.ArticleID != "" && !seenArticle[p.ArticleID] {
			seenArticle[p.ArticleID] = true
			sources = append(sources, p.ArticleID)
		}
		for _, l := range p.YouTubeLinks {
			if !seenLink[l] {
				seenLink[l] = true
				links = append(links, l)
			}
		}
	}
	return sources, links
}
