package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/helpdesk/internal/domain"
	"github.com/liliang-cn/helpdesk/internal/engine"
)

func TestSendTurn_SessionContinuity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "Как сбросить пароль?"})
	require.NoError(t, err)
	require.NotEmpty(t, first.SessionID)
	assert.Equal(t, domain.ResponseTypeAnswer, first.ResponseType)
	assert.Equal(t, "Ответ по статье 2001", first.Answer)
	assert.InDelta(t, 0.9, first.Confidence, 1e-9)
	assert.False(t, first.NeedsEscalation)
	assert.Equal(t, []string{"2001"}, first.SourceArticles)

	second, err := f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: first.SessionID, Message: "Спасибо"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	transcript, err := f.chat.Transcript(ctx, first.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript.Messages, 4)
	assert.Equal(t, "Как сбросить пароль?", transcript.Messages[0].Content)
	assert.Equal(t, domain.RoleAssistant, transcript.Messages[1].Role)
	assert.Equal(t, "Спасибо", transcript.Messages[2].Content)
	assert.Equal(t, domain.RoleAssistant, transcript.Messages[3].Role)
}

func TestSendTurn_OmittedTokenStartsFreshSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "Как сбросить пароль?"})
	require.NoError(t, err)
	second, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "Как сбросить пароль?"})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	unknown, err := f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: "does-not-exist", Message: "Привет"})
	require.NoError(t, err)
	assert.NotEqual(t, "does-not-exist", unknown.SessionID)

	transcript, err := f.chat.Transcript(ctx, second.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript.Messages, 2)
}

func TestSendTurn_ClarificationThenTopicChoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clar, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "проблема в накладной"})
	require.NoError(t, err)
	require.Equal(t, domain.ResponseTypeClarification, clar.ResponseType)
	require.Len(t, clar.SuggestedTopics, 2)
	assert.False(t, clar.OffersEscalation())
	assert.Contains(t, clar.Answer, "1. Не проводится накладная")

	resp, err := f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: clar.SessionID, Message: "1"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseTypeAnswer, resp.ResponseType)
	assert.Equal(t, "Ответ по статье 1001", resp.Answer)
	assert.Equal(t, "1001", f.backend.lastRetrieve().ArticleID)
	assert.Equal(t, "проблема в накладной Не проводится накладная", f.backend.lastQuestion())

	transcript, err := f.chat.Transcript(ctx, clar.SessionID)
	require.NoError(t, err)
	require.Len(t, transcript.Messages, 4)
	assert.Equal(t, "1", transcript.Messages[2].Content)
	assert.Nil(t, transcript.Messages[1].Confidence)
	assert.Len(t, transcript.Messages[1].SuggestedTopics, 2)
	require.NotNil(t, transcript.Messages[3].Confidence)

	// the pending clarification is consumed
	p, err := f.clarify.Get(ctx, clar.SessionID)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSendTurn_SecondTopicIsNotALiteralQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clar, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "проблема в накладной"})
	require.NoError(t, err)

	resp, err := f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: clar.SessionID, Message: " 2 "})
	require.NoError(t, err)
	assert.Equal(t, "Ответ по статье 1002", resp.Answer)
	assert.NotEqual(t, "2", f.backend.lastQuestion())
}

func TestSendTurn_FreeTextAfterClarification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	clar, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "проблема в накладной"})
	require.NoError(t, err)

	resp, err := f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: clar.SessionID, Message: "Как сбросить пароль администратора?"})
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseTypeAnswer, resp.ResponseType)
	assert.Equal(t, "Как сбросить пароль администратора?", f.backend.lastQuestion())

	// a digit now is a plain query
	_, err = f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: clar.SessionID, Message: "1"})
	require.NoError(t, err)
	assert.Equal(t, "1", f.backend.lastQuestion())
}

func TestSendTurn_NoPassagesOffersEscalation(t *testing.T) {
	f := newFixture(t)

	resp, err := f.chat.SendTurn(context.Background(), &domain.ChatRequest{Message: "Какая завтра погода?"})
	require.NoError(t, err)
	assert.Equal(t, engine.NotFoundAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.True(t, resp.NeedsEscalation)
	assert.True(t, resp.OffersEscalation())
}

func TestSendTurn_LowConfidenceNeedsEscalation(t *testing.T) {
	f := newFixture(t)
	f.backend.confidence = 0.2

	resp, err := f.chat.SendTurn(context.Background(), &domain.ChatRequest{Message: "Как сбросить пароль?"})
	require.NoError(t, err)
	assert.True(t, resp.NeedsEscalation)
}

func TestSendTurn_EngineFailureAppendsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.chat.SendTurn(ctx, &domain.ChatRequest{Message: "Как сбросить пароль?"})
	require.NoError(t, err)

	f.backend.genErr = errors.New("llm down")
	_, err = f.chat.SendTurn(ctx, &domain.ChatRequest{SessionID: first.SessionID, Message: "А ещё?"})
	require.ErrorIs(t, err, domain.ErrEngineUnavailable)

	transcript, err := f.chat.Transcript(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Len(t, transcript.Messages, 2)
}

func TestSendTurn_Validation(t *testing.T) {
	f := newFixture(t)

	for _, msg := range []string{"", "   ", strings.Repeat("я", domain.MaxMessageLength+1)} {
		_, err := f.chat.SendTurn(context.Background(), &domain.ChatRequest{Message: msg})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	}

	_, err := f.chat.SendTurn(context.Background(), &domain.ChatRequest{Message: strings.Repeat("я", domain.MaxMessageLength)})
	assert.NoError(t, err)
}

func TestSendTurn_NoEngine(t *testing.T) {
	f := newFixture(t)
	chat := NewChatService(f.sessions, nil, f.clarify, nil)

	_, err := chat.SendTurn(context.Background(), &domain.ChatRequest{Message: "Привет"})
	assert.ErrorIs(t, err, domain.ErrEngineUnavailable)
}

func TestTranscript_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.chat.Transcript(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
