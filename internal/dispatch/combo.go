package dispatch

import "strings"

// Combo is the set of modifier keys held during a click or hover.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
}

// Code returns the canonical code: "", c, s, a, cs, ca, sa or csa.
func (c Combo) Code() string {
	var b strings.Builder
	if c.Ctrl {
		b.WriteByte('c')
	}
	if c.Shift {
		b.WriteByte('s')
	}
	if c.Alt {
		b.WriteByte('a')
	}
	return b.String()
}

var modifierNames = map[rune]string{
	'c': "ctrl",
	's': "shift",
	'a': "alt",
}

// DescribeCode renders a reply label as a key chord, e.g. "cs" becomes
// "ctrl + shift + click". Unknown letters are shown as-is.
func DescribeCode(code string) string {
	parts := make([]string, 0, len(code)+1)
	for _, r := range code {
		if name, ok := modifierNames[r]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, string(r))
		}
	}
	parts = append(parts, "click")
	return strings.Join(parts, " + ")
}
