package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-auth-bridge"
)

func TestBcryptHasher(t *testing.T) {
	h := testHasher()

	hash, err := h.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery staple", hash)

	assert.NoError(t, h.ComparePasswordAndHash("correct horse battery staple", hash))

	err = h.ComparePasswordAndHash("wrong", hash)
	assert.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestBcryptHasherRejectsEmpty(t *testing.T) {
	_, err := testHasher().HashPassword("")
	assert.ErrorIs(t, err, auth.ErrNoEmptyString)
}

func TestBcryptHasherCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, auth.NewBcryptHasher(bcrypt.MinCost).Cost())
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(0).Cost())
	assert.Equal(t, bcrypt.DefaultCost, auth.NewBcryptHasher(99).Cost())

	hash, err := auth.NewBcryptHasher(5).HashPassword("secret-value")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 5, cost)
}

func TestBcryptDummyHashStable(t *testing.T) {
	h := testHasher()
	first := h.DummyHash()
	assert.NotEmpty(t, first)
	assert.Equal(t, first, h.DummyHash())
	assert.Error(t, h.ComparePasswordAndHash("anything", first))
}
