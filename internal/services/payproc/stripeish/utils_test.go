package stripeish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHmac256_RoundTrip(t *testing.T) {
	body := []byte(`{"amount":"51.45","currency":"usd"}`)
	key := []byte("test-signing-key")

	sig := Hmac256(body, key)
	assert.Len(t, sig, 64)

	assert.True(t, VerifyHMAC(body, key, sig))
	assert.False(t, VerifyHMAC(body, []byte("wrong-key"), sig))
	assert.False(t, VerifyHMAC([]byte("tampered"), key, sig))
}

func TestRandomNumber_EighteenDigits(t *testing.T) {
	for i := 0; i < 20; i++ {
		n, err := randomNumber()
		require.NoError(t, err)
		assert.Len(t, n, 18)
	}
}
