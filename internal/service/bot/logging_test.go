package bot

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		limit int
		want  string
	}{
		{
			name:  "short text untouched",
			text:  "hello",
			limit: 10,
			want:  "hello",
		},
		{
			name:  "ascii cut",
			text:  "hello world",
			limit: 8,
			want:  "hello…",
		},
		{
			name:  "multibyte rune not split",
			text:  strings.Repeat("é", 10),
			limit: 5,
			want:  "é…",
		},
		{
			name:  "wide rune dropped whole",
			text:  "🙂🙂",
			limit: 6,
			want:  "…",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.text, tt.limit)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.text, tt.limit, got, tt.want)
			}
			if len(got) > tt.limit {
				t.Errorf("truncate(%q, %d) is %d bytes", tt.text, tt.limit, len(got))
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.text, tt.limit)
			}
		})
	}
}
