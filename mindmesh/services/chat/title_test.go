package chat

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	exact := strings.Repeat("a", 50)
	cases := []struct{ in, want string }{
		{"Short question", "Short question"},
		{"  padded  ", "padded"},
		{exact, exact},
		{exact + "b", exact + "..."},
		{strings.Repeat("é", 60), strings.Repeat("é", 50) + "..."},
	}
	for _, tc := range cases {
		if got := DeriveTitle(tc.in); got != tc.want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
