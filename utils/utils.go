package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const signatureLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		// crypto/rand does not fail on supported platforms
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return n.Int64()
}

// GenerateOTP returns a 4-digit code drawn uniformly from [1000, 9999].
func GenerateOTP() string {
	return fmt.Sprintf("%d", 1000+randInt(9000))
}

// GenerateSignatureCode returns a code shaped like "ABCDEFGH12345":
// eight capital letters followed by five digits.
func GenerateSignatureCode() string {
	var b strings.Builder
	b.Grow(13)
	for i := 0; i < 8; i++ {
		b.WriteByte(signatureLetters[randInt(int64(len(signatureLetters)))])
	}
	fmt.Fprintf(&b, "%05d", randInt(100000))
	return b.String()
}

// NewMissionOrderHash returns an opaque token for a mission-order signature.
// It identifies the signing event and is not verifiable against any payload.
func NewMissionOrderHash(at time.Time) string {
	return fmt.Sprintf("MO-%x-%s", at.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
