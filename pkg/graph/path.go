package graph

import "strings"

// Path is a sequence of map keys addressing a node in a document.
// Navigation may cross any number of link boundaries; paths never
// descend into sequences or scalars.
type Path []string

// Separator delimits keys in the textual path form.
const Separator = "/"

// ParsePath splits a textual path. The empty string addresses the
// root. Empty segments (leading, trailing or doubled separators) are
// dropped, so "a//b/" equals "a/b".
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}

	var p Path
	for _, seg := range strings.Split(s, Separator) {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// String renders the path in its textual form.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// IsRoot reports whether the path addresses the document root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}
