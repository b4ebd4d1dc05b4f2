package digest

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAckToken(t *testing.T) {
	tok, err := NewAckToken()
	require.NoError(t, err)
	assert.Len(t, tok, ackTokenBytes*2)

	_, err = hex.DecodeString(tok)
	assert.NoError(t, err)

	other, err := NewAckToken()
	require.NoError(t, err)
	assert.NotEqual(t, tok, other)
}

func TestTokensEqual(t *testing.T) {
	tok, err := NewAckToken()
	require.NoError(t, err)

	assert.True(t, TokensEqual(tok, tok))
	assert.False(t, TokensEqual(tok, tok[:len(tok)-1]))
	assert.False(t, TokensEqual("", tok))
	assert.False(t, TokensEqual(tok, ""))
	assert.True(t, TokensEqual("", ""))
}
