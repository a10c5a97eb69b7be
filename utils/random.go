package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

func GenerateCode(n int) (string, error) {
	// Make a slice of nBytes random bytes.
	byt := make([]byte, n)

	// Read into the slice.
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	// Return the hexadecimal string.
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// TicketNumber produces a human-readable unique ticket number.
func TicketNumber() (string, error) {
	code, err := GenerateCode(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TKT-%s", code), nil
}

// TransactionNumber produces a human-readable unique transaction number.
func TransactionNumber() (string, error) {
	code, err := GenerateCode(5)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TXN-%s", code), nil
}
