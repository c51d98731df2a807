package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// GenerateCode returns 2*n upper-case hex characters.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateOTP returns length uniformly distributed decimal digits.
func GenerateOTP(length int) (string, error) {
	const charset = "0123456789"

	code := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = charset[n.Int64()]
	}
	return string(code), nil
}

// ReferenceCode builds a bank transfer reference such as AFR-2025-04821.
func ReferenceCode(prefix string, year int) (string, error) {
	digits, err := GenerateOTP(5)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", prefix, year, digits), nil
}

// TicketID builds a ticket id such as AFR-2025-9F1C04B2AA7E.
func TicketID(prefix string, year int) (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%s", prefix, year, code), nil
}
