package security

import (
	"strings"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/crypto/bcrypt"
)

// StaffKeyHeader carries the shared door staff key.
const StaffKeyHeader = "X-Staff-Key"

// StaffGuard protects scanning and transfer confirmation. With no hash
// configured every request is let through.
type StaffGuard struct {
	hash []byte
}

func NewStaffGuard(bcryptHash string) *StaffGuard {
	return &StaffGuard{hash: []byte(strings.TrimSpace(bcryptHash))}
}

func (g *StaffGuard) Enabled() bool {
	return len(g.hash) > 0
}

// Require is route middleware.
func (g *StaffGuard) Require(e *core.RequestEvent) error {
	if !g.Enabled() {
		return e.Next()
	}

	key := e.Request.Header.Get(StaffKeyHeader)
	if key == "" {
		return apis.NewUnauthorizedError("Missing staff key", nil)
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(key)); err != nil {
		return apis.NewUnauthorizedError("Invalid staff key", nil)
	}

	return e.Next()
}

// HashStaffKey produces the value expected in STAFF_KEY_HASH.
func HashStaffKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
