package provision

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

const secretSize = 24

var randReadFunc = rand.Read // mockable

// newSecret returns a throwaway URL-safe password. It is never logged nor returned to callers.
func newSecret() (string, error) {
	buf := make([]byte, secretSize)
	if _, err := randReadFunc(buf); err != nil {
		return "", errors.Wrap(err, "generating temporary password")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
