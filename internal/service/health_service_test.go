package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealth(t *testing.T) {
	f := newFixture(t)

	h := NewHealthService(f.answerer, "1.0.0", nil).Check(context.Background())
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, "1.0.0", h.Version)
	assert.True(t, h.KnowledgeBaseReady)
	assert.Equal(t, 3, h.TotalArticles)
	assert.Equal(t, 12, h.TotalChunks)

	h = NewHealthService(nil, "1.0.0", nil).Check(context.Background())
	assert.Equal(t, "degraded", h.Status)
	assert.False(t, h.KnowledgeBaseReady)
}
