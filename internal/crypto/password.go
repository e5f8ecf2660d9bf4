package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrNoCredential = errors.New("principal has no local credential")

type Hasher struct {
	cost int
}

// NewHasher clamps cost into bcrypt's accepted range.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

func (h Hasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Compare checks password against hash. A nil hash belongs to an SSO-only
// principal and never matches.
func (h Hasher) Compare(hash *string, password string) error {
	if hash == nil || *hash == "" {
		return ErrNoCredential
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password))
}
