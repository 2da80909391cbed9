package rewrite

import "testing"

func TestDecodeEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`plain`, "plain"},
		{`\n\nHuman:`, "\n\nHuman:"},
		{`tab\there`, "tab\there"},
		{`back\\slash`, `back\slash`},
		{`quote\"s and \'s`, `quote"s and 's`},
		{`été`, "été"},
		{`\x41\101`, "AA"},
		{`unknown \q escape`, `unknown \q escape`},
		{`trailing \`, `trailing \`},
		{`naïve\n`, "naïve\n"},
	}

	for _, tt := range tests {
		if got := DecodeEscapes(tt.in); got != tt.want {
			t.Errorf("DecodeEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
