package postgres

import "testing"

func TestEscapeLikePattern(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "go meetup", want: "go meetup"},
		{name: "percent", input: "100% go", want: `100\% go`},
		{name: "underscore", input: "go_conf", want: `go\_conf`},
		{name: "backslash", input: `back\slash`, want: `back\\slash`},
		{name: "mixed", input: `%_\`, want: `\%\_\\`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := escapeLikePattern(tc.input); got != tc.want {
				t.Fatalf("escapeLikePattern(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
