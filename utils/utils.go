package utils

import (
	"crypto/md5"
	"encoding/hex"
	"math/rand"
	"os"
	"time"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz"

// ContainsString returns true iff the provided string slice hay contains string
// needle.
func ContainsString(hay []string, needle string) bool {
	for _, str := range hay {
		if str == needle {
			return true
		}
	}
	return false
}

// RandomAlphabetString generates a random lowercase string of length n.
func RandomAlphabetString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return string(b)
}

// TextToMd5Hash returns the hex md5 digest of the input text.
func TextToMd5Hash(text string) (string, error) {
	h := md5.New()
	if _, err := h.Write([]byte(text)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func IsProdEnv() bool {
	return os.Getenv("VIBECHECK_ENV") == "prod"
}

// RandomDurationBetween returns a uniformly random duration in [min, max].
// Used for humanized pacing between scrape requests.
func RandomDurationBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// AnonymizeHandle masks the middle of an author handle, keeping the first and
// last rune. Short handles are fully masked. We never persist raw handles.
func AnonymizeHandle(handle string) string {
	runes := []rune(handle)
	if len(runes) <= 2 {
		return "**"
	}
	masked := make([]rune, len(runes))
	masked[0] = runes[0]
	masked[len(runes)-1] = runes[len(runes)-1]
	for i := 1; i < len(runes)-1; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
