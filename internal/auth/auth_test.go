package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddress(t *testing.T) {
	// published mixed-case checksum vectors
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		got, err := NormalizeAddress(strings.ToLower(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)

		got, err = NormalizeAddress(v)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	bad := []string{
		"",
		"5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAe",
		"0xZZAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
	}
	for _, b := range bad {
		_, err := NormalizeAddress(b)
		assert.ErrorIs(t, err, ErrInvalidAddress, b)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	token, err := CreateJWT(Session{Address: "0xabc", DisplayName: "alice"})
	require.NoError(t, err)

	s, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", s.Address)
	assert.Equal(t, "alice", s.DisplayName)

	_, err = AuthenticateJWT(token + "x")
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	require.NoError(t, Init(-time.Minute))
	token, err := CreateJWT(Session{Address: "0xabc"})
	require.NoError(t, err)
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}
