package engine

import (
	"context"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

type fakeBackend struct {
	passages []Passage
	output   string
	err      error

	lastRetrieve RetrieveRequest
	lastGenerate GenerateRequest
	generated    int
}

func (f *fakeBackend) Retrieve(_ context.Context, req RetrieveRequest) ([]Passage, error) {
	f.lastRetrieve = req
	if req.ArticleID == "" {
		return f.passages, nil
	}
	var out []Passage
	for _, p := range f.passages {
		if p.ArticleID == req.ArticleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.lastGenerate = req
	f.generated++
	return f.output, f.err
}

func (f *fakeBackend) Stats(context.Context) (*domain.KnowledgeBaseStats, error) {
	return &domain.KnowledgeBaseStats{TotalArticles: 2, TotalChunks: 7}, nil
}

func (f *fakeBackend) Close() error { return nil }
