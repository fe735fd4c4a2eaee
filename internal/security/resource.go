package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
)

const resourceDomain = "fitcoach/resource/v1"

// SignResource ties a stored object to the row that owns it. Each part is
// length prefixed so ("ab","c") and ("a","bc") sign differently.
func SignResource(secret string, parts ...string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(resourceDomain))
	var n [4]byte
	for _, p := range parts {
		binary.BigEndian.PutUint32(n[:], uint32(len(p)))
		mac.Write(n[:])
		mac.Write([]byte(p))
	}
	out := make([]byte, base64.RawURLEncoding.EncodedLen(sha256.Size))
	base64.RawURLEncoding.Encode(out, mac.Sum(nil))
	return out
}

func VerifyResource(secret string, signature []byte, parts ...string) bool {
	if len(signature) == 0 {
		return false
	}
	return hmac.Equal(signature, SignResource(secret, parts...))
}
