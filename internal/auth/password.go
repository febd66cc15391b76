package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minimumPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maximumPasswordLength = 72
	passwordCost          = bcrypt.DefaultCost
)

var (
	ErrWeakPassword    = errors.New("password does not meet minimum length")
	ErrPasswordTooLong = errors.New("password exceeds maximum length")
)

func HashPassword(plain string) (string, error) {
	if len(plain) < minimumPasswordLength {
		return "", ErrWeakPassword
	}
	if len(plain) > maximumPasswordLength {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// NeedsRehash reports whether a stored hash was produced with a different cost.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != passwordCost
}
