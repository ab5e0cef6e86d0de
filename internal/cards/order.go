package cards

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// order compares identities with locale collation. Collation can rank two
// distinct strings equal, so byte order breaks ties to keep the row strict.
// A collate.Collator is not safe for concurrent use; callers hold Row.mu.
type order struct {
	c *collate.Collator
}

func newOrder(tag language.Tag) *order {
	return &order{c: collate.New(tag)}
}

func (o *order) compare(a, b string) int {
	if n := o.c.CompareString(a, b); n != 0 {
		return n
	}
	return strings.Compare(a, b)
}
