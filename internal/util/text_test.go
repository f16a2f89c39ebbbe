package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	in := "ok\x00text" + string([]byte{0xff})
	if got := SanitizePostgresText(in); got != "oktext" {
		t.Fatalf("expected oktext, got %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  인공지능  ", "인공지능"},
		{"Open\t AI ", "Open\t AI"},
		{"   ", ""},
		{"OpenAI", "OpenAI"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Fatalf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("가나다라", 2); got != "가나" {
		t.Fatalf("expected 가나, got %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
}
