package mesh

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ToTriangles converts the mesh to the sdfx triangle representation.
func (m *Mesh) ToTriangles() []*sdf.Triangle3 {
	tris := make([]*sdf.Triangle3, 0, m.TriangleCount())
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Triangle(t)
		tris = append(tris, &sdf.Triangle3{a, b, c})
	}
	return tris
}

// SaveSTL writes the mesh as an STL file, the geometry artifact the solver
// voxelizes at startup.
func (m *Mesh) SaveSTL(path string) error {
	if m.IsEmpty() {
		return fmt.Errorf("save stl: empty mesh")
	}
	if err := render.SaveSTL(path, m.ToTriangles()); err != nil {
		return fmt.Errorf("save stl: %w", err)
	}
	return nil
}

// LoadSTL reads a binary or ASCII STL file into a mesh. Vertices are not
// merged; the result is flat-shaded triangle soup, which is all the preview
// and the solver artifact need.
func LoadSTL(path string) (*Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load stl: %w", err)
	}
	defer f.Close()

	header := make([]byte, 5)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("load stl: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("load stl: %w", err)
	}

	var m *Mesh
	if string(header) == "solid" {
		m, err = readASCIISTL(f)
	} else {
		m, err = readBinarySTL(f)
	}
	if err != nil {
		return nil, fmt.Errorf("load stl %s: %w", path, err)
	}
	return m, nil
}

func appendTriangle(m *Mesh, verts [9]float32) {
	base := uint32(m.VertexCount())
	m.Vertices = append(m.Vertices, verts[:]...)
	m.Indices = append(m.Indices, base, base+1, base+2)
}

func readBinarySTL(r io.Reader) (*Mesh, error) {
	br := bufio.NewReader(r)
	if _, err := io.CopyN(io.Discard, br, 80); err != nil {
		return nil, err
	}
	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	m := &Mesh{}
	// normal (3) + vertices (9) + attribute count (uint16)
	var rec struct {
		Normal [3]float32
		Verts  [9]float32
		Attr   uint16
	}
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(br, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("triangle %d: %w", i, err)
		}
		appendTriangle(m, rec.Verts)
	}
	return m, nil
}

func readASCIISTL(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var verts [9]float32
	n := 0
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 4 || fields[0] != "vertex" {
			continue
		}
		for k := 0; k < 3; k++ {
			v, err := strconv.ParseFloat(fields[k+1], 32)
			if err != nil {
				return nil, fmt.Errorf("bad vertex: %w", err)
			}
			verts[n*3+k] = float32(v)
		}
		n++
		if n == 3 {
			appendTriangle(m, verts)
			n = 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n != 0 {
		return nil, fmt.Errorf("truncated facet (%d of 3 vertices)", n)
	}
	return m, nil
}

// Translate moves every vertex by the given offset.
func (m *Mesh) Translate(off v3.Vec) {
	for i := 0; i < m.VertexCount(); i++ {
		m.Vertices[3*i] += float32(off.X)
		m.Vertices[3*i+1] += float32(off.Y)
		m.Vertices[3*i+2] += float32(off.Z)
	}
}
