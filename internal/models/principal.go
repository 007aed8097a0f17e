package models

// Principal is an opaque, cryptographically verifiable identity such as a
// wallet address. Two principals are the same identity iff their strings are
// equal.
type Principal string

// String returns the principal's address.
func (p Principal) String() string {
	return string(p)
}

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool {
	return p == ""
}
