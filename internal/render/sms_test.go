package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMSLength(t *testing.T) {
	cases := []struct {
		msg  string
		want Length
	}{
		{"hello", Length{5, 1}},
		{"line\nbreak", Length{11, 1}},
		{"€5", Length{3, 1}},
		{"emoji 😀", Length{6, 1}},
		{strings.Repeat("a", 160), Length{160, 1}},
		{strings.Repeat("a", 161), Length{161, 2}},
		{strings.Repeat("a", 306), Length{306, 2}},
		{strings.Repeat("a", 307), Length{307, 3}},
		{strings.Repeat("{", 80), Length{160, 1}},
	}

	for _, tc := range cases {
		got, err := SMSLength(tc.msg)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.msg)
	}
}

func TestSMSLengthLimit(t *testing.T) {
	_, err := SMSLength(strings.Repeat("a", 1377))
	require.NoError(t, err)

	_, err = SMSLength(strings.Repeat("a", 1378))
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestParseMobile(t *testing.T) {
	n, err := ParseMobile("07891123856", "GB")
	require.NoError(t, err)
	assert.Equal(t, "+447891123856", n.E164)
	assert.Equal(t, "44", n.CountryCode)
	assert.Equal(t, "GB", n.Region)
	assert.Equal(t, "+44 7891 123856", n.Formatted)

	_, err = ParseMobile("not a number", "GB")
	assert.ErrorIs(t, err, ErrInvalidNumber)

	_, err = ParseMobile("123", "GB")
	assert.ErrorIs(t, err, ErrInvalidNumber)
}
