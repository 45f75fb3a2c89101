package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ReadVTK parses a legacy-format VTK structured-points file into a
// snapshot. Both ASCII and big-endian BINARY encodings are handled. The
// file must carry DIMENSIONS, ORIGIN, SPACING and a POINT_DATA section
// with at least one float scalar array (density) and one float vector
// array (velocity); an unsigned_char scalar array, when present, becomes
// the boundary flags.
func ReadVTK(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vtk: %w", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read vtk: %w", err)
	}
	s, err := parseVTK(data)
	if err != nil {
		return nil, fmt.Errorf("read vtk %s: %w", path, err)
	}
	s.Source = path
	s.Published = fi.ModTime()
	return s, nil
}

// vtkParser walks the raw file with a byte cursor so the ASCII header and
// an embedded big-endian binary payload can share one pass.
type vtkParser struct {
	data   []byte
	pos    int
	binary bool
}

func parseVTK(data []byte) (*Snapshot, error) {
	p := &vtkParser{data: data}

	if line, err := p.line(); err != nil || !strings.HasPrefix(line, "# vtk DataFile") {
		return nil, fmt.Errorf("not a vtk file")
	}
	if _, err := p.line(); err != nil { // title, free text
		return nil, err
	}
	format, err := p.line()
	if err != nil {
		return nil, err
	}
	switch format {
	case "ASCII":
	case "BINARY":
		p.binary = true
	default:
		return nil, fmt.Errorf("unsupported encoding %q", format)
	}
	if line, err := p.line(); err != nil || line != "DATASET STRUCTURED_POINTS" {
		return nil, fmt.Errorf("unsupported dataset %q", line)
	}

	s := &Snapshot{Spacing: v3.Vec{X: 1, Y: 1, Z: 1}}
	cells := -1
	for cells < 0 {
		line, err := p.line()
		if err != nil {
			return nil, err
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "DIMENSIONS":
			if s.Nx, s.Ny, s.Nz, err = parseDims(f); err != nil {
				return nil, err
			}
		case "ORIGIN":
			if s.Origin, err = parseVec(f); err != nil {
				return nil, err
			}
		case "SPACING":
			if s.Spacing, err = parseVec(f); err != nil {
				return nil, err
			}
		case "POINT_DATA", "CELL_DATA":
			if len(f) != 2 {
				return nil, fmt.Errorf("malformed %s line %q", f[0], line)
			}
			if cells, err = strconv.Atoi(f[1]); err != nil {
				return nil, fmt.Errorf("malformed %s count: %w", f[0], err)
			}
		default:
			return nil, fmt.Errorf("unexpected header line %q", line)
		}
	}
	if s.Nx <= 0 || s.Ny <= 0 || s.Nz <= 0 {
		return nil, fmt.Errorf("missing DIMENSIONS")
	}
	if cells != s.CellCount() {
		return nil, fmt.Errorf("data count %d does not match dimensions %dx%dx%d", cells, s.Nx, s.Ny, s.Nz)
	}

	// Data arrays, in file order.
	for {
		line, err := p.line()
		if err != nil { // end of file
			break
		}
		f := strings.Fields(line)
		if len(f) == 0 {
			continue
		}
		switch f[0] {
		case "SCALARS":
			if len(f) < 3 {
				return nil, fmt.Errorf("malformed SCALARS line %q", line)
			}
			if lut, err := p.line(); err != nil || !strings.HasPrefix(lut, "LOOKUP_TABLE") {
				return nil, fmt.Errorf("SCALARS %s: missing LOOKUP_TABLE", f[1])
			}
			switch f[2] {
			case "float", "double":
				vals, err := p.floats(cells)
				if err != nil {
					return nil, fmt.Errorf("SCALARS %s: %w", f[1], err)
				}
				if s.Density == nil {
					s.Density = vals
				}
			case "unsigned_char":
				vals, err := p.bytes(cells)
				if err != nil {
					return nil, fmt.Errorf("SCALARS %s: %w", f[1], err)
				}
				if s.Flags == nil {
					s.Flags = vals
				}
			default:
				return nil, fmt.Errorf("SCALARS %s: unsupported type %s", f[1], f[2])
			}
		case "VECTORS":
			if len(f) < 3 {
				return nil, fmt.Errorf("malformed VECTORS line %q", line)
			}
			vals, err := p.floats(3 * cells)
			if err != nil {
				return nil, fmt.Errorf("VECTORS %s: %w", f[1], err)
			}
			if s.Velocity == nil {
				s.Velocity = vals
			}
		default:
			return nil, fmt.Errorf("unexpected section %q", line)
		}
	}

	if s.Density == nil {
		return nil, fmt.Errorf("no scalar field present")
	}
	if s.Velocity == nil {
		return nil, fmt.Errorf("no vector field present")
	}
	return s, nil
}

// line returns the next newline-terminated header line, trimmed.
func (p *vtkParser) line() (string, error) {
	if p.pos >= len(p.data) {
		return "", fmt.Errorf("unexpected end of file")
	}
	end := bytes.IndexByte(p.data[p.pos:], '\n')
	if end < 0 {
		end = len(p.data) - p.pos
	}
	line := strings.TrimSpace(string(p.data[p.pos : p.pos+end]))
	p.pos += end + 1
	if p.pos > len(p.data) {
		p.pos = len(p.data)
	}
	return line, nil
}

// floats reads n float32 values: whitespace-separated in ASCII files,
// big-endian IEEE in binary files (the byte order the legacy format
// mandates).
func (p *vtkParser) floats(n int) ([]float32, error) {
	out := make([]float32, n)
	if p.binary {
		need := 4 * n
		if len(p.data)-p.pos < need {
			return nil, fmt.Errorf("truncated binary data: need %d bytes, have %d", need, len(p.data)-p.pos)
		}
		for i := 0; i < n; i++ {
			bits := binary.BigEndian.Uint32(p.data[p.pos+4*i:])
			out[i] = math.Float32frombits(bits)
		}
		p.pos += need
		p.skipNewline()
		return out, nil
	}
	for i := 0; i < n; i++ {
		tok, err := p.token()
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", i, n, err)
		}
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", i, n, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// bytes reads n unsigned_char values.
func (p *vtkParser) bytes(n int) ([]uint8, error) {
	out := make([]uint8, n)
	if p.binary {
		if len(p.data)-p.pos < n {
			return nil, fmt.Errorf("truncated binary data: need %d bytes, have %d", n, len(p.data)-p.pos)
		}
		copy(out, p.data[p.pos:p.pos+n])
		p.pos += n
		p.skipNewline()
		return out, nil
	}
	for i := 0; i < n; i++ {
		tok, err := p.token()
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", i, n, err)
		}
		v, err := strconv.ParseUint(tok, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("value %d of %d: %w", i, n, err)
		}
		out[i] = uint8(v)
	}
	return out, nil
}

// token returns the next whitespace-separated ASCII token.
func (p *vtkParser) token() (string, error) {
	for p.pos < len(p.data) && isSpace(p.data[p.pos]) {
		p.pos++
	}
	if p.pos >= len(p.data) {
		return "", fmt.Errorf("unexpected end of file")
	}
	start := p.pos
	for p.pos < len(p.data) && !isSpace(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos]), nil
}

// skipNewline consumes the line break that follows a binary block.
func (p *vtkParser) skipNewline() {
	for p.pos < len(p.data) && (p.data[p.pos] == '\n' || p.data[p.pos] == '\r') {
		p.pos++
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func parseDims(f []string) (nx, ny, nz int, err error) {
	if len(f) != 4 {
		return 0, 0, 0, fmt.Errorf("malformed DIMENSIONS")
	}
	if nx, err = strconv.Atoi(f[1]); err != nil {
		return
	}
	if ny, err = strconv.Atoi(f[2]); err != nil {
		return
	}
	nz, err = strconv.Atoi(f[3])
	return
}

func parseVec(f []string) (v3.Vec, error) {
	if len(f) != 4 {
		return v3.Vec{}, fmt.Errorf("malformed %s", f[0])
	}
	var out [3]float64
	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(f[i+1], 64)
		if err != nil {
			return v3.Vec{}, fmt.Errorf("malformed %s: %w", f[0], err)
		}
		out[i] = v
	}
	return v3.Vec{X: out[0], Y: out[1], Z: out[2]}, nil
}
