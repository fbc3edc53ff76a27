package admingate

import (
	stderrors "errors"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost())
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if stderrors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return err
	}
	return nil
}

// PasswordGate verifies submitted passwords against the stored admin hash.
// It is read-only apart from ChangePassword; lockout checks and event
// logging belong to the caller and must happen before Verify.
type PasswordGate struct {
	credentials CredentialStore
}

// NewPasswordGate returns a gate backed by the given credential store.
func NewPasswordGate(credentials CredentialStore) *PasswordGate {
	return &PasswordGate{credentials: credentials}
}

// Verify reports whether password matches the stored hash.
func (g *PasswordGate) Verify(password string) (bool, error) {
	hash, err := g.credentials.GetPasswordHash()
	if err != nil {
		return false, err
	}

	if err := ComparePasswordAndHash(password, hash); err != nil {
		if stderrors.Is(err, ErrInvalidPassword) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// ChangePassword replaces the stored hash after proving knowledge of the
// current password. The swap is atomic at the store level.
func (g *PasswordGate) ChangePassword(current, next string) error {
	ok, err := g.Verify(current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidPassword
	}

	hash, err := HashPassword(next)
	if err != nil {
		return err
	}

	return g.credentials.SetPasswordHash(hash)
}
