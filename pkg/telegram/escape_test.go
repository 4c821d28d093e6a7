package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeMarkdownV2(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain text unchanged", in: "Hello world", want: "Hello world"},
		{name: "unicode unchanged", in: "早上好 ☀️ café", want: "早上好 ☀️ café"},
		{name: "empty", in: "", want: ""},
		{name: "punctuation", in: "Done. Really!", want: `Done\. Really\!`},
		{name: "every reserved char", in: "_*[]()~`>#+-=|{}.!", want: `\_\*\[\]\(\)\~\` + "`" + `\>\#\+\-\=\|\{\}\.\!`},
		{name: "backslash escaped once", in: `a\b`, want: `a\\b`},
		{name: "backslash before reserved", in: `\.`, want: `\\\.`},
		{name: "list marker", in: "1. Write - then rest", want: `1\. Write \- then rest`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EscapeMarkdownV2(tc.in))
		})
	}
}

func TestEscapeMarkdownV2IsNotIdempotent(t *testing.T) {
	once := EscapeMarkdownV2("a.b")
	twice := EscapeMarkdownV2(once)

	assert.Equal(t, `a\.b`, once)
	assert.Equal(t, `a\\\.b`, twice)
	assert.NotEqual(t, once, twice)
}
