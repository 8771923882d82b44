package util

import (
	"crypto/rand"
	"math/big"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// IDLength is the number of base62 characters in ids from NewID (~95 bits).
const IDLength = 16

var base62Max = big.NewInt(int64(len(base62Alphabet)))

// NewID returns a random base62 identifier.
func NewID() string {
	buf := make([]byte, IDLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, base62Max)
		if err != nil {
			panic("util: crypto/rand unavailable: " + err.Error())
		}
		buf[i] = base62Alphabet[n.Int64()]
	}
	return string(buf)
}
