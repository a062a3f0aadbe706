package search

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"npm install failed", []string{"npm", "install", "failed"}},
		{"Fix CORS-error on /api/v2!", []string{"fix", "cors", "error", "on", "api", "v2"}},
		{"snake_case stays whole", []string{"snake_case", "stays", "whole"}},
		{"  --- !!! ", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got := Tokenize(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
