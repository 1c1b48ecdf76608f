package utils

import (
	"crypto/rand"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func HashPin(pin string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), 10)
	return string(bytes), err
}

func ComparePin(pinHash string, pin string) error {
	return bcrypt.CompareHashAndPassword([]byte(pinHash), []byte(pin))
}

// codeAlphabet omits 0/O/1/I so printed codes survive being read aloud.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateCardCode returns a redemption code of `groups` groups of four,
// e.g. "GV-8K2M-P4QT-73WX". Uniqueness is enforced by the DB index; callers
// retry on collision.
func GenerateCardCode(groups int) (string, error) {
	if groups <= 0 {
		return "", errors.New("invalid group count")
	}

	raw := make([]byte, groups*4)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("GV")
	for i, c := range raw {
		if i%4 == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
	}
	return b.String(), nil
}
