package nameorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestCaseSensitiveOrdersByByteValue(t *testing.T) {
	c := CaseSensitive()
	assert.True(t, c.Compare("Apple", "apple") < 0)
	assert.False(t, c.Equal("Apple", "apple"))
}

func TestCaseInsensitiveFoldsForCompareAndEqual(t *testing.T) {
	c := CaseInsensitive(language.English)
	assert.True(t, c.Equal("Apple", "apple"))
	assert.Equal(t, 0, c.Compare("APPLE", "apple"))
}

func TestCollationOrdersLocaleAware(t *testing.T) {
	c := Collation(language.English)
	assert.True(t, c.Compare("a", "b") < 0)
	assert.True(t, c.Equal("a", "a"))
}
