package tokenize

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := map[string]struct {
		raw  string
		want Line
	}{
		"empty line": {
			raw:  "",
			want: Line{Argv: nil, Background: false},
		},
		"simple command": {
			raw:  "echo hello",
			want: Line{Argv: []string{"echo", "hello"}, Background: false},
		},
		"background job": {
			raw:  "sleep 10 &",
			want: Line{Argv: []string{"sleep", "10"}, Background: true},
		},
		"single quoted argument with spaces": {
			raw:  "echo 'hello world'",
			want: Line{Argv: []string{"echo", "hello world"}, Background: false},
		},
		"extra whitespace collapses": {
			raw:  "  echo   hi  ",
			want: Line{Argv: []string{"echo", "hi"}, Background: false},
		},
		"ampersand glued to token is not background": {
			raw:  "echo foo&",
			want: Line{Argv: []string{"echo", "foo&"}, Background: false},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got := Tokenize(test.raw)
			if !reflect.DeepEqual(got, test.want) {
				t.Fatalf("expected %+v, got %+v", test.want, got)
			}
		})
	}
}
