package stripeish

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

func randomNumber() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 is a function to generate HMAC256 hash.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifyHMAC reports whether receivedHMAC signs body under key.
func VerifyHMAC(body, key []byte, receivedHMAC string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(receivedHMAC), []byte(expected))
}
