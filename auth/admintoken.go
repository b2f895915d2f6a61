package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

// AdminTokenPrefix marks gateway-issued admin session tokens.
const AdminTokenPrefix = "admin_"

// randomTokenBits sizes the random component of an admin token.
const randomTokenBits = 64

// NewAdminToken issues an opaque admin session token:
// "admin_" + random base36 + issue-time base36. The token carries no identity
// by itself; it is only a key into the session store.
func NewAdminToken() (string, error) {
	max := new(big.Int).Lsh(big.NewInt(1), randomTokenBits)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate admin token: %w", err)
	}

	random := n.Text(36)
	issued := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return AdminTokenPrefix + random + issued, nil
}

// IsAdminTokenFormat reports whether a string is shaped like an admin token.
// Used to reject garbage before hitting the session store.
func IsAdminTokenFormat(token string) bool {
	if !strings.HasPrefix(token, AdminTokenPrefix) {
		return false
	}
	body := token[len(AdminTokenPrefix):]
	if len(body) < 8 {
		return false
	}
	for _, r := range body {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
