package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusResolved, true},
		{StatusPending, StatusClosed, true},
		{StatusInProgress, StatusPending, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusInProgress, StatusResolved, true},
		{StatusResolved, StatusClosed, true},
		{StatusPending, StatusPending, false},
		{StatusResolved, StatusPending, false},
		{StatusResolved, StatusInProgress, false},
		{StatusClosed, StatusPending, false},
		{StatusClosed, StatusInProgress, false},
		{StatusClosed, StatusResolved, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, got)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestTransition_UnknownStatus(t *testing.T) {
	_, err := Transition(Status("archived"), StatusClosed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestReplyStatus(t *testing.T) {
	st, err := ReplyStatus(StatusPending, false)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)

	st, err = ReplyStatus(StatusInProgress, false)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)

	st, err = ReplyStatus(StatusInProgress, true)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, st)

	_, err = ReplyStatus(StatusResolved, false)
	assert.ErrorIs(t, err, ErrTicketClosed)

	_, err = ReplyStatus(StatusClosed, true)
	assert.ErrorIs(t, err, ErrTicketClosed)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("in_progress")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, st)

	_, err = ParseStatus("done")
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.True(t, StatusClosed.IsTerminal())
	assert.False(t, StatusResolved.IsTerminal())
}

func TestChatResponse_OffersEscalation(t *testing.T) {
	answer := &ChatResponse{ResponseType: ResponseTypeAnswer, NeedsEscalation: true}
	assert.True(t, answer.OffersEscalation())

	clarification := &ChatResponse{ResponseType: ResponseTypeClarification, NeedsEscalation: true}
	assert.False(t, clarification.OffersEscalation())

	confident := &ChatResponse{ResponseType: ResponseTypeAnswer}
	assert.False(t, confident.OffersEscalation())
}
