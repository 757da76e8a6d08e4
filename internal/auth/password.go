package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	core "github.com/switchboard-ai/switchboard/internal"
)

// bcryptCost trades login latency (~250ms) for brute-force resistance.
const bcryptCost = 12

// HashPassword returns the bcrypt hash of a plaintext password.
func HashPassword(plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("empty password: %w", core.ErrValidation)
	}
	// bcrypt silently truncates beyond 72 bytes; reject instead.
	if len(plain) > 72 {
		return "", fmt.Errorf("password longer than 72 bytes: %w", core.ErrValidation)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword compares a plaintext password against its stored hash.
func CheckPassword(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return core.ErrInvalidCred
		}
		return err
	}
	return nil
}
