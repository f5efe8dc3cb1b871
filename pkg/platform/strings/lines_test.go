package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines("   \n  "))
	assert.Equal(t,
		[]string{"10.0.0.1", "2001:db8::1", "192.168.1.7"},
		SplitLines("10.0.0.1\r\n 2001:DB8::1 \n\n192.168.1.7\n10.0.0.1\n2001:db8::1"),
	)
}

func TestNormalizeList(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeList(nil))
	assert.Equal(t, []string{"a", "b"}, NormalizeList([]string{" A", "b", "", "a ", "B"}))
}

func TestJoinLinesRoundTrip(t *testing.T) {
	list := []string{"10.0.0.1", "10.0.0.2"}
	assert.Equal(t, list, SplitLines(JoinLines(list)))
}
