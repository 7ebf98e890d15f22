// Package engine wraps the retrieval-augmented answering backend: passage
// retrieval over the knowledge base, answer generation and the query
// completeness classifier that decides between an answer and a
// clarification turn.
package engine

import (
	"context"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

// Passage is a retrieved chunk of a support article
type Passage struct {
	ArticleID    string
	Title        string
	Content      string
	Score        float64
	YouTubeLinks []string
}

// Message is a prior transcript turn handed to the generator
type Message struct {
	Role    string
	Content string
}

// RetrieveRequest describes a knowledge base search
type RetrieveRequest struct {
	Query string
	TopK  int
	// ArticleID restricts results to a single article when set
	ArticleID string
}

// GenerateRequest is the input to answer generation
type GenerateRequest struct {
	Question string
	Passages []Passage
	History  []Message
}

// Retriever searches the knowledge base. Results are ordered by descending score.
type Retriever interface {
	Retrieve(ctx context.Context, req RetrieveRequest) ([]Passage, error)
}

// Generator produces the raw model output for a question, confidence block included
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Backend is a complete answering backend
type Backend interface {
	Retriever
	Generator
	Stats(ctx context.Context) (*domain.KnowledgeBaseStats, error)
	Close() error
}

// Generation parameters shared by every generator
const (
	HistoryTurns       = 6
	DefaultTemperature = 0.1
	DefaultMaxTokens   = 2000
)

// splitBackend combines a retriever with a different generator
type splitBackend struct {
	Backend
	gen Generator
}

// WithGenerator returns a Backend that retrieves through b and generates through gen
func WithGenerator(b Backend, gen Generator) Backend {
	return &splitBackend{Backend: b, gen: gen}
}

func (s *splitBackend) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return s.gen.Generate(ctx, req)
}
