package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswererSearchFiltersByRelevance(t *testing.T) {
	backend := &fakeBackend{passages: []Passage{
		p("1001", "Сброс пароля", 0.9),
		p("1002", "Права пользователей", 0.29),
	}}
	a := NewAnswerer(backend, Options{TopK: 5, MinRelevance: 0.3, ConfidenceThreshold: 0.3}, nil)

	got, err := a.Search(context.Background(), "Как сбросить пароль?", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001", got[0].ArticleID)
	assert.Equal(t, 5, backend.lastRetrieve.TopK)

	got, err = a.Search(context.Background(), "пароль", "1002")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "1002", backend.lastRetrieve.ArticleID)
}

func TestAnswererNotFound(t *testing.T) {
	backend := &fakeBackend{}
	a := NewAnswerer(backend, Options{ConfidenceThreshold: 0.3}, nil)

	ans, err := a.Answer(context.Background(), "Как сбросить пароль?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, ans.Text)
	assert.Zero(t, ans.Confidence)
	assert.True(t, ans.NeedsEscalation)
	assert.Zero(t, backend.generated)
}

func TestAnswererThreshold(t *testing.T) {
	tests := []struct {
		confidence float64
		escalate   bool
	}{
		{0.1, true},
		{0.29, true},
		{0.3, false},
		{0.9, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.confidence), func(t *testing.T) {
			backend := &fakeBackend{output: fmt.Sprintf("Ответ\n```confidence\n{\"confidence\": %v, \"reason\": \"r\"}\n```", tt.confidence)}
			a := NewAnswerer(backend, Options{ConfidenceThreshold: 0.3}, nil)

			ans, err := a.Answer(context.Background(), "вопрос", []Passage{p("1", "T", 0.9)}, nil)
			require.NoError(t, err)
			assert.Equal(t, "Ответ", ans.Text)
			assert.Equal(t, tt.escalate, ans.NeedsEscalation)
		})
	}
}

func TestAnswererReferencesAndHistory(t *testing.T) {
	backend := &fakeBackend{output: "ok"}
	a := NewAnswerer(backend, Options{ConfidenceThreshold: 0.3}, nil)

	passages := []Passage{
		{ArticleID: "1001", Score: 0.9, YouTubeLinks: []string{"https://youtu.be/a"}},
		{ArticleID: "1002", Score: 0.8, YouTubeLinks: []string{"https://youtu.be/a", "https://youtu.be/b"}},
		{ArticleID: "1001", Score: 0.7},
	}
	var history []Message
	for i := 0; i < 10; i++ {
		history = append(history, Message{Role: "user", Content: fmt.Sprint(i)})
	}

	ans, err := a.Answer(context.Background(), "q", passages, history)
	require.NoError(t, err)
	assert.Equal(t, []string{"1001", "1002"}, ans.SourceArticles)
	assert.Equal(t, []string{"https://youtu.be/a", "https://youtu.be/b"}, ans.YouTubeLinks)
	assert.Equal(t, DefaultConfidence, ans.Confidence)

	require.Len(t, backend.lastGenerate.History, HistoryTurns)
	assert.Equal(t, "4", backend.lastGenerate.History[0].Content)
}

func TestAnswererGenerationFailure(t *testing.T) {
	backend := &fakeBackend{err: errors.New("upstream down")}
	a := NewAnswerer(backend, Options{}, nil)

	_, err := a.Answer(context.Background(), "q", []Passage{p("1", "T", 0.9)}, nil)
	assert.Error(t, err)
}

func TestWithGenerator(t *testing.T) {
	retriever := &fakeBackend{output: "from retriever"}
	gen := &fakeBackend{output: "from generator"}

	b := WithGenerator(retriever, gen)
	out, err := b.Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from generator", out)

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalArticles)
}
