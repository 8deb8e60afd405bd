package domain

import "math/rand"

// codeAlphabet omits 0/O/1/I so codes stay unambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// SessionCodeLength is the length of generated join codes.
const SessionCodeLength = 6

// NewSessionCode generates a random join code. Uniqueness among live
// sessions is enforced by the store; callers retry on collision.
func NewSessionCode(rnd *rand.Rand) string {
	b := make([]byte, SessionCodeLength)
	for i := range b {
		b[i] = codeAlphabet[rnd.Intn(len(codeAlphabet))]
	}
	return string(b)
}
