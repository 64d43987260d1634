package mesh

import (
	"errors"
	"fmt"
	"log"
	"sort"
)

// ErrMeshValidation is matched by every *ValidationError.
var ErrMeshValidation = errors.New("mesh validation failed")

// ValidationError reports malformed connectivity. Index fields are -1 when
// they do not apply.
type ValidationError struct {
	Compartment int
	Boundary    int
	Element     int
	Facet       int
	Reason      string
}

func (e *ValidationError) Error() string {
	msg := ErrMeshValidation.Error()
	if e.Compartment >= 0 {
		msg += fmt.Sprintf(": compartment %d", e.Compartment)
	}
	if e.Boundary >= 0 {
		msg += fmt.Sprintf(", boundary %d", e.Boundary)
	}
	if e.Element >= 0 {
		msg += fmt.Sprintf(", element %d", e.Element)
	}
	if e.Facet >= 0 {
		msg += fmt.Sprintf(", facet %d", e.Facet)
	}
	return msg + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrMeshValidation }

func NewValidationError(cmpt, boundary, elem, facet int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Compartment: cmpt,
		Boundary:    boundary,
		Element:     elem,
		Facet:       facet,
		Reason:      fmt.Sprintf(format, args...),
	}
}

// Compartment is one disjoint tissue region with its own point numbering.
type Compartment struct {
	Points   [][3]float64 // Vertex coordinates [npoints][3]
	Elements [][4]int     // Tet to vertex connectivity, local indices
}

func (c Compartment) NPoints() int   { return len(c.Points) }
func (c Compartment) NElements() int { return len(c.Elements) }

// ElementPoints gathers the vertex coordinates of element k.
func (c Compartment) ElementPoints(k int) (p [4][3]float64) {
	for i, v := range c.Elements[k] {
		p[i] = c.Points[v]
	}
	return
}

// FEMesh is a multi-compartment P1 tetrahedral mesh. Facets[c][b] holds the
// triangles of compartment c lying on boundary b, as local point indices.
// A boundary shared by two compartments is an interface.
type FEMesh struct {
	Compartments []Compartment
	Facets       [][][][3]int
	// BoundaryNames is optional, indexed by boundary.
	BoundaryNames []string
}

func (m *FEMesh) NCompartments() int { return len(m.Compartments) }

func (m *FEMesh) NBoundaries() int {
	if len(m.Facets) == 0 {
		return 0
	}
	return len(m.Facets[0])
}

// NPoints is the global number of degrees of freedom.
func (m *FEMesh) NPoints() (n int) {
	for _, c := range m.Compartments {
		n += c.NPoints()
	}
	return
}

// Offsets returns the first global DOF of each compartment and the total.
// Global ordering is compartment order, then local point order.
func (m *FEMesh) Offsets() (offsets []int) {
	offsets = make([]int, len(m.Compartments)+1)
	for c, cmpt := range m.Compartments {
		offsets[c+1] = offsets[c] + cmpt.NPoints()
	}
	return
}

// Touching returns the compartments with a non empty facet set on boundary b.
func (m *FEMesh) Touching(b int) (cmpts []int) {
	for c := range m.Facets {
		if len(m.Facets[c][b]) != 0 {
			cmpts = append(cmpts, c)
		}
	}
	return
}

// Validate checks connectivity and facet tables against each compartment's
// point range and rejects facets listed more than once.
func (m *FEMesh) Validate() error {
	if len(m.Compartments) == 0 {
		return NewValidationError(-1, -1, -1, -1, "mesh has no compartments")
	}
	if len(m.Facets) != len(m.Compartments) {
		return NewValidationError(-1, -1, -1, -1,
			"facet table has %d rows for %d compartments", len(m.Facets), len(m.Compartments))
	}
	nb := m.NBoundaries()
	for c, cmpt := range m.Compartments {
		np := cmpt.NPoints()
		if np == 0 || cmpt.NElements() == 0 {
			return NewValidationError(c, -1, -1, -1, "compartment is empty")
		}
		for k, elem := range cmpt.Elements {
			for i, v := range elem {
				if v < 0 || v >= np {
					return NewValidationError(c, -1, k, -1,
						"vertex index %d outside [0,%d)", v, np)
				}
				for _, w := range elem[:i] {
					if w == v {
						return NewValidationError(c, -1, k, -1, "repeated vertex %d", v)
					}
				}
			}
		}
		if len(m.Facets[c]) != nb {
			return NewValidationError(c, -1, -1, -1,
				"facet row has %d boundaries, expected %d", len(m.Facets[c]), nb)
		}
		// a face lies on at most one boundary of a compartment, once
		seen := make(map[FaceKey]int)
		for b, facets := range m.Facets[c] {
			for f, facet := range facets {
				for _, v := range facet {
					if v < 0 || v >= np {
						return NewValidationError(c, b, -1, f,
							"facet index %d outside [0,%d)", v, np)
					}
				}
				key := NewFaceKey(facet)
				if b0, ok := seen[key]; ok {
					return NewValidationError(c, b, -1, f,
						"facet %v repeats a facet of boundary %d", facet, b0)
				}
				seen[key] = b
			}
		}
	}
	return nil
}

// SplitField splits a global vector into per compartment views.
func SplitField[T float64 | complex128](m *FEMesh, x []T) (parts [][]T) {
	offsets := m.Offsets()
	if len(x) != offsets[len(offsets)-1] {
		panic(fmt.Errorf("field length %d does not match %d mesh points",
			len(x), offsets[len(offsets)-1]))
	}
	parts = make([][]T, len(m.Compartments))
	for c := range parts {
		parts[c] = x[offsets[c]:offsets[c+1]]
	}
	return
}

// GetTetFaces returns the four faces of a tet in Gambit local face order.
func GetTetFaces(v [4]int) [4][3]int {
	return [4][3]int{
		{v[0], v[2], v[1]}, // Face 0
		{v[0], v[1], v[3]}, // Face 1
		{v[1], v[2], v[3]}, // Face 2
		{v[0], v[3], v[2]}, // Face 3
	}
}

// FaceKey is the sorted vertex triple of a face.
type FaceKey [3]int

func NewFaceKey(f [3]int) FaceKey {
	s := []int{f[0], f[1], f[2]}
	sort.Ints(s)
	return FaceKey{s[0], s[1], s[2]}
}

// FaceOwner records which element and local face produced a face.
type FaceOwner struct {
	Element int
	LocalID int
}

// BuildFaceMap maps every face of a compartment to its owning elements.
func (c Compartment) BuildFaceMap() (faces map[FaceKey][]FaceOwner) {
	faces = make(map[FaceKey][]FaceOwner, 2*len(c.Elements))
	for k, elem := range c.Elements {
		for lf, f := range GetTetFaces(elem) {
			key := NewFaceKey(f)
			faces[key] = append(faces[key], FaceOwner{k, lf})
		}
	}
	return
}

// PrintStatistics logs mesh statistics
func (m *FEMesh) PrintStatistics() {
	log.Printf("Mesh Statistics: %d compartments, %d boundaries, %d points",
		m.NCompartments(), m.NBoundaries(), m.NPoints())
	for c, cmpt := range m.Compartments {
		nf := 0
		for _, facets := range m.Facets[c] {
			nf += len(facets)
		}
		log.Printf("  compartment %d: %d points, %d tets, %d facets",
			c, cmpt.NPoints(), cmpt.NElements(), nf)
	}
	for b := 0; b < m.NBoundaries(); b++ {
		name := ""
		if b < len(m.BoundaryNames) {
			name = m.BoundaryNames[b]
		}
		log.Printf("  boundary %d %q touches compartments %v", b, name, m.Touching(b))
	}
}
