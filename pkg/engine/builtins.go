package engine

import (
	"fmt"

	v2 "github.com/deadsy/sdfx/vec/v2"
	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/flumelab/flume/pkg/profile"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource transforms sketch Lisp source before passing it to
// zygomys:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal),
//     avoiding keyword globals that would collide with user variables.
//
//  2. Kebab-case to underscore: pipe-bore -> pipe_bore. zygomys reads a
//     hyphen inside an identifier as subtraction.
//
//  3. ; line comments become the // comments zygomys expects.
//
// All transformations respect string literal boundaries.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Copy double-quoted string literals untouched.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// ; comments -> // comments.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// :keyword -> "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			if b[i+1] == '=' { // preserve assignment
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, b[i+1:j]...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Kebab hyphen between identifier characters -> underscore.
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isLetter(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Custom Sexp types
// ---------------------------------------------------------------------------

// sexpPoint wraps a 2D point so it can be passed between builtins.
type sexpPoint struct {
	pt v2.Vec
}

func (p *sexpPoint) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(point %g %g)", p.pt.X, p.pt.Y)
}
func (p *sexpPoint) Type() *zygo.RegisteredType { return nil }

// sexpProfile wraps a profile so it can be returned from the shape
// constructors and consumed by defprofile.
type sexpProfile struct {
	prof *profile.Profile
}

func (s *sexpProfile) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(profile %d points)", len(s.prof.Points))
}
func (s *sexpProfile) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string, returning the
// keyword name without the prefix.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if len(str.S) > len(kwPrefix) && str.S[:len(kwPrefix)] == kwPrefix {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a parsed mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		if name, ok := isKW(args[i]); ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// toFloat64 extracts a float64 from a SexpInt or SexpFloat.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// atOffset reads the optional :at keyword as a point.
func atOffset(pa kwArgs) (v2.Vec, error) {
	v, ok := pa.kw["at"]
	if !ok {
		return v2.Vec{}, nil
	}
	p, ok := v.(*sexpPoint)
	if !ok {
		return v2.Vec{}, fmt.Errorf(":at expects a point, got %s", v.SexpString(nil))
	}
	return p.pt, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the sketch DSL into a zygomys environment. The
// builtins populate the provided Sketch during evaluation. Source must be
// run through preprocessSource first so :keyword tokens are recognizable.
func registerBuiltins(env *zygo.Zlisp, sk *Sketch) {

	// -----------------------------------------------------------------------
	// (point x y)
	// -----------------------------------------------------------------------
	env.AddFunction("point", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("point: want (point x y), got %d args", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("point: y: %w", err)
		}
		return &sexpPoint{pt: v2.Vec{X: x, Y: y}}, nil
	})

	// -----------------------------------------------------------------------
	// (polygon (point 0 0) (point 2 0) (point 1 2))
	// -----------------------------------------------------------------------
	env.AddFunction("polygon", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pts := make([]v2.Vec, 0, len(args))
		for i, a := range args {
			p, ok := a.(*sexpPoint)
			if !ok {
				return zygo.SexpNull, fmt.Errorf("polygon: arg %d: expected point, got %s", i+1, a.SexpString(nil))
			}
			pts = append(pts, p.pt)
		}
		if len(pts) < 3 {
			return zygo.SexpNull, fmt.Errorf("polygon: %d points, need at least 3", len(pts))
		}
		return &sexpProfile{prof: profile.New(pts)}, nil
	})

	// -----------------------------------------------------------------------
	// (rect width height :at (point cx cy))
	// -----------------------------------------------------------------------
	env.AddFunction("rect", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("rect: want (rect width height), got %d args", len(pa.positional))
		}
		w, err := toFloat64(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rect: width: %w", err)
		}
		h, err := toFloat64(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rect: height: %w", err)
		}
		if w <= 0 || h <= 0 {
			return zygo.SexpNull, fmt.Errorf("rect: %gx%g, sides must be positive", w, h)
		}
		off, err := atOffset(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rect: %w", err)
		}
		return &sexpProfile{prof: profile.Rect(w, h).Translated(off)}, nil
	})

	// -----------------------------------------------------------------------
	// (ngon sides radius :at (point cx cy))
	// -----------------------------------------------------------------------
	env.AddFunction("ngon", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("ngon: want (ngon sides radius), got %d args", len(pa.positional))
		}
		n, err := toFloat64(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ngon: sides: %w", err)
		}
		r, err := toFloat64(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ngon: radius: %w", err)
		}
		if n < 3 || n != float64(int(n)) {
			return zygo.SexpNull, fmt.Errorf("ngon: %g sides, want an integer of at least 3", n)
		}
		if r <= 0 {
			return zygo.SexpNull, fmt.Errorf("ngon: radius %g, must be positive", r)
		}
		off, err := atOffset(pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("ngon: %w", err)
		}
		return &sexpProfile{prof: profile.Ngon(int(n), r).Translated(off)}, nil
	})

	// -----------------------------------------------------------------------
	// (defprofile "intake" (rect 2 1))
	// -----------------------------------------------------------------------
	env.AddFunction("defprofile", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("defprofile: want (defprofile name profile), got %d args", len(args))
		}
		pname, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defprofile: name: %w", err)
		}
		sp, ok := args[1].(*sexpProfile)
		if !ok {
			return zygo.SexpNull, fmt.Errorf("defprofile %q: expected profile, got %s", pname, args[1].SexpString(nil))
		}
		// Reject bad geometry at definition time, with the source name
		// attached, instead of letting it surface at extrusion.
		if err := sp.prof.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("defprofile %q: %w", pname, err)
		}
		if sk.Find(pname) != nil {
			return zygo.SexpNull, fmt.Errorf("defprofile %q: name already defined", pname)
		}
		sk.Profiles = append(sk.Profiles, NamedProfile{Name: pname, Profile: sp.prof})
		return args[1], nil
	})
}
