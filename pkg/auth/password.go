package auth

import (
	"errors"

	"github.com/alexedwards/argon2id"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// HashPassword produces an argon2id hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2id.DefaultParams)
}

// CheckPassword compares a plaintext password with an argon2id hash. An empty hash never matches.
func CheckPassword(password, hash string) error {
	if hash == "" || password == "" {
		return ErrInvalidCredentials
	}
	ok, err := argon2id.ComparePasswordAndHash(password, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}
