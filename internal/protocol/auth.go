package protocol

import "strings"

// AuthFlags is the authorization bitmask carried in UserInfo frames and the
// auth cache file. The bit values are an external wire contract.
type AuthFlags uint32

const (
	AuthNone   AuthFlags = 0x00
	AuthAdmin  AuthFlags = 0x01
	AuthMod    AuthFlags = 0x02
	AuthRanked AuthFlags = 0x04
	AuthBot    AuthFlags = 0x08
	AuthBanned AuthFlags = 0x10
)

// Has reports whether every bit of mask is set.
func (f AuthFlags) Has(mask AuthFlags) bool { return f&mask == mask }

// HasAny reports whether any bit of mask is set.
func (f AuthFlags) HasAny(mask AuthFlags) bool { return f&mask != 0 }

// Letters renders the registry form of the bitmask: one character per set
// bit, in A M R B order. The banned bit is intentionally absent; it never
// reaches the registry.
func (f AuthFlags) Letters() string {
	var b strings.Builder
	if f.Has(AuthAdmin) {
		b.WriteByte('A')
	}
	if f.Has(AuthMod) {
		b.WriteByte('M')
	}
	if f.Has(AuthRanked) {
		b.WriteByte('R')
	}
	if f.Has(AuthBot) {
		b.WriteByte('B')
	}
	return b.String()
}

// ListLetters is Letters plus an X marker for the banned bit, used in the
// operator-facing !list and occupancy tables.
func (f AuthFlags) ListLetters() string {
	s := f.Letters()
	if f.Has(AuthBanned) {
		s += "X"
	}
	return s
}
