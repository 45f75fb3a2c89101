package engine

import "testing"

// --- Preprocessing ---

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"keyword", `(rect 1 2 :at p)`, `(rect 1 2 "__kw_at" p)`},
		{"kebab identifier", `(def pipe-bore 3)`, `(def pipe_bore 3)`},
		{"minus untouched", `(- 5 3)`, `(- 5 3)`},
		{"subtraction spaced", `(point (- x 1) y)`, `(point (- x 1) y)`},
		{"semicolon comment", "(rect 1 1) ; note\n", "(rect 1 1) // note\n"},
		{"string untouched", `(defprofile "a-b :c" p)`, `(defprofile "a-b :c" p)`},
		{"assignment kept", `(def x := 3)`, `(def x := 3)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.in); got != tt.want {
				t.Errorf("preprocessSource(%q)\n got %q\nwant %q", tt.in, got, tt.want)
			}
		})
	}
}

// --- Error line extraction ---

func TestParseZygomysError(t *testing.T) {
	errs := parseZygomysError(errFixture("Error on line 7: unbound symbol"))
	if errs[0].Line != 7 || errs[0].Message != "unbound symbol" {
		t.Errorf("parsed = %+v", errs[0])
	}

	errs = parseZygomysError(errFixture("something opaque"))
	if errs[0].Line != 0 || errs[0].Message != "something opaque" {
		t.Errorf("parsed = %+v", errs[0])
	}
}

type errFixture string

func (e errFixture) Error() string { return string(e) }
