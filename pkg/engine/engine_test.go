package engine

import (
	"math"
	"strings"
	"testing"
)

func mustEvaluate(t *testing.T, source string) *Sketch {
	t.Helper()
	sk, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("Evaluate() fatal error = %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("Evaluate() eval errors = %v", evalErrs)
	}
	return sk
}

func evalErrors(t *testing.T, source string) []EvalError {
	t.Helper()
	sk, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("Evaluate() fatal error = %v", err)
	}
	if sk != nil {
		t.Fatalf("Evaluate() returned a sketch alongside errors")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors, got none")
	}
	return evalErrs
}

// --- Success paths ---

func TestEvaluateEmptySource(t *testing.T) {
	sk := mustEvaluate(t, "   \n\t")
	if len(sk.Profiles) != 0 {
		t.Errorf("empty source defined %d profiles", len(sk.Profiles))
	}
}

func TestEvaluateRect(t *testing.T) {
	sk := mustEvaluate(t, `(defprofile "intake" (rect 2 1))`)
	p := sk.Find("intake")
	if p == nil {
		t.Fatal("profile not defined")
	}
	if got := p.Area(); math.Abs(got-2) > 1e-12 {
		t.Errorf("Area() = %g, want 2", got)
	}
}

func TestEvaluatePolygon(t *testing.T) {
	sk := mustEvaluate(t, `
		(defprofile "wedge"
		  (polygon (point 0 0) (point 3 0) (point 0 2)))`)
	p := sk.Find("wedge")
	if p == nil {
		t.Fatal("profile not defined")
	}
	if len(p.Points) != 3 {
		t.Errorf("points = %d, want 3", len(p.Points))
	}
	if got := p.Area(); math.Abs(got-3) > 1e-12 {
		t.Errorf("Area() = %g, want 3", got)
	}
}

func TestEvaluateNgonWithOffset(t *testing.T) {
	sk := mustEvaluate(t, `(defprofile "pipe" (ngon 6 1 :at (point 10 -2)))`)
	p := sk.Find("pipe")
	if p == nil {
		t.Fatal("profile not defined")
	}
	min, max := p.Bounds()
	cx, cy := (min.X+max.X)/2, (min.Y+max.Y)/2
	if math.Abs(cx-10) > 1e-9 || math.Abs(cy+2) > 1e-9 {
		t.Errorf("center = (%g,%g), want (10,-2)", cx, cy)
	}
}

func TestEvaluateMultipleProfiles(t *testing.T) {
	sk := mustEvaluate(t, `
		; two cross sections for one study
		(defprofile "inlet" (rect 1 1))
		(defprofile "outlet" (ngon 8 0.5))`)
	if len(sk.Profiles) != 2 {
		t.Fatalf("defined %d profiles, want 2", len(sk.Profiles))
	}
	if sk.Profiles[0].Name != "inlet" || sk.Profiles[1].Name != "outlet" {
		t.Errorf("definition order lost: %v, %v", sk.Profiles[0].Name, sk.Profiles[1].Name)
	}
}

// --- Failure paths ---

func TestEvaluateSelfIntersectingProfile(t *testing.T) {
	errs := evalErrors(t, `
		(defprofile "bowtie"
		  (polygon (point 0 0) (point 1 1) (point 1 0) (point 0 1)))`)
	if !strings.Contains(errs[0].Message, "self-intersecting") {
		t.Errorf("error %q should name the geometry failure", errs[0].Message)
	}
}

func TestEvaluateDuplicateName(t *testing.T) {
	errs := evalErrors(t, `
		(defprofile "a" (rect 1 1))
		(defprofile "a" (rect 2 2))`)
	if !strings.Contains(errs[0].Message, "already defined") {
		t.Errorf("error = %q", errs[0].Message)
	}
}

func TestEvaluateBadArguments(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"rect arity", `(defprofile "x" (rect 1))`},
		{"rect negative", `(defprofile "x" (rect -1 1))`},
		{"ngon two sides", `(defprofile "x" (ngon 2 1))`},
		{"polygon non-point", `(defprofile "x" (polygon 1 2 3))`},
		{"defprofile non-profile", `(defprofile "x" 42)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalErrors(t, tt.source)
		})
	}
}

func TestEvaluateParseError(t *testing.T) {
	evalErrors(t, `(defprofile "x" (rect 1 1`)
}

func TestFindMissingProfile(t *testing.T) {
	sk := mustEvaluate(t, `(defprofile "a" (rect 1 1))`)
	if sk.Find("b") != nil {
		t.Error("Find() of unknown name should be nil")
	}
}
