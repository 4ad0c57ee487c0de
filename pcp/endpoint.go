package pcp

import (
	"crypto/rand"
)

// endpointIDAlphabet matches spec §3's "exactly 4 printable ASCII bytes".
const endpointIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewEndpointID returns a random 4-character printable ASCII endpoint id.
func NewEndpointID() string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	out := make([]byte, 4)
	for i, b := range buf {
		out[i] = endpointIDAlphabet[int(b)%len(endpointIDAlphabet)]
	}
	return string(out)
}
