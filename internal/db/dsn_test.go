package db

import "testing"

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "  ", ""},
		{"url untouched", "'postgres://u:p@h:5432/d'", "postgres://u:p@h:5432/d"},
		{"kv adds sslmode", "host=h   user=u dbname=d", "host=h user=u dbname=d sslmode=disable"},
		{"kv keeps sslmode", "host=h user=u dbname=d sslmode=require", "host=h user=u dbname=d sslmode=require"},
		{"garbage untouched", "not a dsn", "not a dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDSN(tt.in); got != tt.want {
				t.Errorf("NormalizeDSN(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToURLDSN(t *testing.T) {
	got := ToURLDSN("host=db port=5432 user=app password=s3cret dbname=budgets sslmode=disable")
	want := "postgres://app:s3cret@db:5432/budgets?sslmode=disable"
	if got != want {
		t.Fatalf("ToURLDSN() = %q, want %q", got, want)
	}
	if got := ToURLDSN("host=db dbname=budgets"); got != "host=db dbname=budgets" {
		t.Fatalf("expected incomplete DSN untouched, got %q", got)
	}
}

func TestMaskDSN(t *testing.T) {
	if got := maskDSN("host=h password=secret user=u"); got != "host=h password=*** user=u" {
		t.Fatalf("maskDSN() = %q", got)
	}
}
