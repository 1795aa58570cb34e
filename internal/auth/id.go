package auth

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// newUserID returns a ULID user id (26 chars, lexicographically sortable).
func newUserID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
