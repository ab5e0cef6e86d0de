// Package identity parses card identities.
//
// A card identity is a participant label that may carry behaviour flags after
// the base name, e.g. "Alice::qr". The raw label stays the card key; the parsed
// form is what dispatching looks at.
package identity

import "strings"

// Delimiter separates the base name from each flag.
const Delimiter = "::"

// FlagReply marks a card whose click runs the member reply of the same label.
const FlagReply = "qr"

// ID is a parsed card identity.
type ID struct {
	Base  string
	Flags []string
}

// Parse splits raw on Delimiter. Empty flags are kept so String round-trips.
func Parse(raw string) ID {
	parts := strings.Split(raw, Delimiter)
	id := ID{Base: parts[0]}
	if len(parts) > 1 {
		id.Flags = parts[1:]
	}
	return id
}

// String serializes the identity back to its raw label.
func (id ID) String() string {
	if len(id.Flags) == 0 {
		return id.Base
	}
	return id.Base + Delimiter + strings.Join(id.Flags, Delimiter)
}

// Has reports whether flag is present.
func (id ID) Has(flag string) bool {
	for _, f := range id.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
