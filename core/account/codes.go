package account

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// codeAlphabet avoids case-folding collisions: uppercase letters and digits only.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// DefaultCodeLength gives ~2*10^9 possible codes, plenty for a school platform.
	DefaultCodeLength = 6

	// attempts per length before the code is widened by one character
	codeRetriesPerLength = 10
	// hard cap on widening; 36^10 makes exhaustion a non-concern
	maxCodeLength = 10
)

var ErrCodeSpaceExhausted = errors.New("could not generate a unique code")

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", errors.Wrap(err, "reading random index")
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateCode produces a short human-shareable code that checkExists reports
// as unused. Retries are bounded: after a few collisions at a given length the
// code is widened by one character instead of retrying forever.
//
// The existence check alone does not make the code unique under concurrency;
// callers must still treat a unique-violation on insert as a collision and
// call GenerateCode again.
func GenerateCode(checkExists func(code string) (bool, error), length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	for ; length <= maxCodeLength; length++ {
		for attempt := 0; attempt < codeRetriesPerLength; attempt++ {
			code, err := randomCode(length)
			if err != nil {
				return "", err
			}
			exists, err := checkExists(code)
			if err != nil {
				return "", errors.Wrap(err, "checking code existence")
			}
			if !exists {
				return code, nil
			}
		}
	}
	return "", ErrCodeSpaceExhausted
}
