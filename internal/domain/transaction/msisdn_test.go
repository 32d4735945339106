package transaction

import (
	"errors"
	"testing"
)

func TestNormalizeMSISDN(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"+254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"0712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
	}
	for _, tc := range cases {
		got, err := NormalizeMSISDN(tc.in)
		if err != nil {
			t.Errorf("NormalizeMSISDN(%q): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeMSISDN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeMSISDNRejects(t *testing.T) {
	for _, in := range []string{"12345", "", "07123456789012", "25571234567", "notaphone"} {
		_, err := NormalizeMSISDN(in)
		if err == nil {
			t.Errorf("NormalizeMSISDN(%q): expected error, got none", in)
			continue
		}
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("NormalizeMSISDN(%q): error %v is not a ValidationError", in, err)
		}
	}
}
