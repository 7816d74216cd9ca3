package auth

// SecretRing holds the ordered list of signing secrets. The first entry signs
// new tokens; every entry is eligible during verification so that tokens
// issued before a rotation remain valid until they expire.
type SecretRing struct {
	secrets [][]byte
}

// NewSecretRing builds a ring from the current secret and an optional
// previous one. The current secret must not be empty; config enforces that
// before this is reached.
func NewSecretRing(current, previous string) *SecretRing {
	ring := &SecretRing{secrets: [][]byte{[]byte(current)}}
	if previous != "" {
		ring.secrets = append(ring.secrets, []byte(previous))
	}
	return ring
}

// Signing returns the secret used to sign new tokens.
func (r *SecretRing) Signing() []byte {
	return r.secrets[0]
}

// All returns every secret eligible for verification, current first.
func (r *SecretRing) All() [][]byte {
	return r.secrets
}
