package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/helpdesk/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	m := NewJWTManager([]byte("secret"), 12*time.Hour)

	token, err := m.Issue(domain.Principal{Username: "anna", DisplayName: "Анна"})
	require.NoError(t, err)

	p, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "anna", p.Username)
	assert.Equal(t, "Анна", p.DisplayName)
}

func TestVerifyExpired(t *testing.T) {
	m := NewJWTManager([]byte("secret"), 12*time.Hour)
	issued := time.Now().Add(-13 * time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.Issue(domain.Principal{Username: "anna"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := NewJWTManager([]byte("one"), time.Hour).Issue(domain.Principal{Username: "anna"})
	require.NoError(t, err)

	_, err = NewJWTManager([]byte("two"), time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyMissingSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTManager([]byte("secret"), time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestVerifyGarbage(t *testing.T) {
	_, err := NewJWTManager([]byte("secret"), time.Hour).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret"))
}
