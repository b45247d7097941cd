package auth

import "golang.org/x/crypto/bcrypt"

// Passwords hashes and checks passwords with bcrypt at a fixed cost.
type Passwords struct{ cost int }

// NewPasswords returns a Passwords using cost, or bcrypt.DefaultCost when
// cost is outside bcrypt's accepted range.
func NewPasswords(cost int) *Passwords {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Passwords{cost: cost}
}

// Hash returns the bcrypt hash of plain.
func (p *Passwords) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), p.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify safely compares a bcrypt hash with a plain password.
func (p *Passwords) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
