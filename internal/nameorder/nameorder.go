// Package nameorder supplies the pluggable name comparator AFS directories
// use to keep their B+-tree leaves sorted (spec §4.4.2: "case-sensitivity
// is injected via a name_comparer function").
package nameorder

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Comparer orders and compares directory entry names.
type Comparer interface {
	// Compare returns <0, 0, >0 as a < b, a == b, a > b in this ordering.
	Compare(a, b string) int
	// Equal reports whether a and b name the same directory entry.
	Equal(a, b string) bool
}

type byteOrder struct{}

// CaseSensitive returns a comparator that orders names by raw byte value,
// the default for POSIX-style filesystems.
func CaseSensitive() Comparer { return byteOrder{} }

func (byteOrder) Compare(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func (byteOrder) Equal(a, b string) bool { return a == b }

type caseFoldOrder struct {
	caser cases.Caser
}

// CaseInsensitive returns a case-preserving, case-insensitive comparator:
// names retain their original case in storage but "A" and "a" collide and
// sort together, using language-independent Unicode case folding; tag is
// not used.
func CaseInsensitive(tag language.Tag) Comparer {
	return caseFoldOrder{caser: cases.Fold()}
}

func (c caseFoldOrder) fold(s string) string { return c.caser.String(s) }

func (c caseFoldOrder) Compare(a, b string) int {
	fa, fb := c.fold(a), c.fold(b)
	if fa < fb {
		return -1
	}
	if fa > fb {
		return 1
	}
	return 0
}

func (c caseFoldOrder) Equal(a, b string) bool { return c.fold(a) == c.fold(b) }

type collationOrder struct {
	col *collate.Collator
}

// Collation returns a comparator using full Unicode collation rules for
// the given language (e.g. correct ordering of accented characters),
// for filesystems that want locale-aware directory listings.
func Collation(tag language.Tag) Comparer {
	return collationOrder{col: collate.New(tag)}
}

func (c collationOrder) Compare(a, b string) int {
	return c.col.CompareString(a, b)
}

func (c collationOrder) Equal(a, b string) bool {
	return c.col.CompareString(a, b) == 0
}
