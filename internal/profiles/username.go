package profiles

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
)

var usernameInvalid = regexp.MustCompile(`[^\w.@+-]`)

// CalculateUsername derives a free username from an email address. The local
// part is sanitized and truncated to maxLen; collisions get a numeric suffix.
// When the suffix would overflow maxLen, an email digest is returned instead.
func CalculateUsername(ctx context.Context, email string, maxLen int, exists func(context.Context, string) (bool, error)) (string, error) {
	local := email
	if i := strings.Index(email, "@"); i >= 0 {
		local = email[:i]
	}
	base := usernameInvalid.ReplaceAllString(local, "-")
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	candidate := base
	for n := 1; ; n++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = base + strconv.Itoa(n)
		if len(candidate) > maxLen {
			return emailDigest(local), nil
		}
	}
}

func emailDigest(local string) string {
	sum := sha1.Sum([]byte(local))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
