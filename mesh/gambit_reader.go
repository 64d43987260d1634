package mesh

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadMeshFile reads a mesh file based on extension
func ReadMeshFile(filename string) (*FEMesh, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".neu":
		return ReadGambitNeutral(filename)
	default:
		return nil, fmt.Errorf("unsupported mesh format: %s", ext)
	}
}

type gambitFace struct {
	elem, face int // 0-based
}

// gambitMesh is the raw single numbering content of a neutral file.
type gambitMesh struct {
	vertices [][3]float64
	elements [][4]int
	groupOf  []int
	groupIDs []int
	bcNames  []string
	bcFaces  [][]gambitFace
}

// ReadGambitNeutral reads a Gambit neutral file (.neu) of tetrahedra. Each
// element group becomes a compartment (ordered by group ID) with its own
// point numbering. Each element/face boundary set becomes a boundary. Faces
// not listed in any set are still classified: unlisted outer faces go to one
// "unlabelled" boundary per compartment, unlisted faces shared by two groups
// go to one interface boundary per group pair.
func ReadGambitNeutral(filename string) (*FEMesh, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	gm, err := parseGambit(bufio.NewScanner(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return gm.toFEMesh()
}

func parseGambit(scanner *bufio.Scanner) (gm *gambitMesh, err error) {
	gm = &gambitMesh{}
	// Control variables from header
	var numnp, nelem, ngrps, nbsets int

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.Contains(line, "NUMNP") && strings.Contains(line, "NELEM") {
			if !scanner.Scan() {
				return nil, fmt.Errorf("unexpected EOF after control header")
			}
			values := strings.Fields(scanner.Text())
			if len(values) < 4 {
				return nil, fmt.Errorf("malformed control line %q", scanner.Text())
			}
			numnp, _ = strconv.Atoi(values[0])
			nelem, _ = strconv.Atoi(values[1])
			ngrps, _ = strconv.Atoi(values[2])
			nbsets, _ = strconv.Atoi(values[3])
			break
		}
	}
	if numnp == 0 || nelem == 0 {
		return nil, fmt.Errorf("missing or empty control info section")
	}
	gm.groupOf = make([]int, 0, nelem)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "ENDOFSECTION" {
			continue
		}

		if strings.Contains(line, "NODAL COORDINATES") {
			gm.vertices = make([][3]float64, numnp)
			for i := 0; i < numnp; i++ {
				if !scanner.Scan() {
					return nil, fmt.Errorf("unexpected EOF reading nodes")
				}
				fields := strings.Fields(scanner.Text())
				if len(fields) < 4 {
					return nil, fmt.Errorf("malformed node line %q", scanner.Text())
				}
				nodeID, _ := strconv.Atoi(fields[0])
				// Gambit uses 1-based node IDs
				idx := nodeID - 1
				if idx < 0 || idx >= numnp {
					return nil, fmt.Errorf("node id %d outside [1,%d]", nodeID, numnp)
				}
				for d := 0; d < 3; d++ {
					if gm.vertices[idx][d], err = strconv.ParseFloat(fields[1+d], 64); err != nil {
						return nil, fmt.Errorf("node %d: %w", nodeID, err)
					}
				}
			}

		} else if strings.Contains(line, "ELEMENTS/CELLS") {
			gm.elements = make([][4]int, 0, nelem)
			for i := 0; i < nelem; i++ {
				if !scanner.Scan() {
					return nil, fmt.Errorf("unexpected EOF reading elements")
				}
				fields := strings.Fields(scanner.Text())
				if len(fields) < 3 {
					return nil, fmt.Errorf("malformed element line %q", scanner.Text())
				}
				gambitType, _ := strconv.Atoi(fields[1])
				numNodes, _ := strconv.Atoi(fields[2])
				if gambitType != 6 || numNodes != 4 || len(fields) < 7 {
					return nil, fmt.Errorf("element %s: only 4 node tetrahedra (type 6) are supported", fields[0])
				}
				var nodes [4]int
				for j := 0; j < 4; j++ {
					nodeID, _ := strconv.Atoi(fields[3+j])
					nodes[j] = nodeID - 1
				}
				gm.elements = append(gm.elements, nodes)
				gm.groupOf = append(gm.groupOf, -1)
			}

		} else if strings.Contains(line, "ELEMENT GROUP") {
			if err = gm.parseGroup(scanner, line); err != nil {
				return nil, err
			}

		} else if strings.Contains(line, "BOUNDARY CONDITIONS") {
			if err = gm.parseBoundarySet(scanner); err != nil {
				return nil, err
			}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %v", err)
	}
	if len(gm.groupIDs) != ngrps {
		return nil, fmt.Errorf("read %d element groups, header announces %d", len(gm.groupIDs), ngrps)
	}
	if len(gm.bcNames) != nbsets {
		return nil, fmt.Errorf("read %d boundary sets, header announces %d", len(gm.bcNames), nbsets)
	}
	return
}

// parseGroup reads one ELEMENT GROUP section; the header line has already
// been consumed when it carries the GROUP: fields itself.
func (gm *gambitMesh) parseGroup(scanner *bufio.Scanner, header string) error {
	groupLine := header
	if !strings.Contains(groupLine, "GROUP:") {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading element group")
		}
		groupLine = strings.TrimSpace(scanner.Text())
	}
	var groupID, numElems, nflags int
	parts := strings.Fields(groupLine)
	for i := 0; i < len(parts)-1; i++ {
		switch parts[i] {
		case "GROUP:":
			groupID, _ = strconv.Atoi(parts[i+1])
		case "ELEMENTS:":
			numElems, _ = strconv.Atoi(parts[i+1])
		case "NFLAGS:":
			nflags, _ = strconv.Atoi(parts[i+1])
		}
	}
	// entity name
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF reading group %d", groupID)
	}
	if nflags > 0 && !scanner.Scan() {
		return fmt.Errorf("unexpected EOF reading group %d flags", groupID)
	}
	gm.groupIDs = append(gm.groupIDs, groupID)
	elementsRead := 0
	for elementsRead < numElems {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF reading group %d elements", groupID)
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "ENDOFSECTION" {
			break
		}
		for _, field := range strings.Fields(line) {
			elemID, err := strconv.Atoi(field)
			if err != nil || elemID < 1 || elemID > len(gm.elements) {
				return fmt.Errorf("group %d: bad element id %q", groupID, field)
			}
			gm.groupOf[elemID-1] = groupID
			elementsRead++
		}
	}
	return nil
}

func (gm *gambitMesh) parseBoundarySet(scanner *bufio.Scanner) error {
	if !scanner.Scan() {
		return fmt.Errorf("unexpected EOF reading boundary set")
	}
	// Format: NAME ITYPE NENTRY NVALUES IBCODE1 ...
	parts := strings.Fields(scanner.Text())
	if len(parts) < 3 {
		return fmt.Errorf("malformed boundary set line %q", scanner.Text())
	}
	var (
		bcName    = parts[0]
		itype, _  = strconv.Atoi(parts[1])
		nentry, _ = strconv.Atoi(parts[2])
		faces     []gambitFace
	)
	for i := 0; i < nentry; i++ {
		if !scanner.Scan() {
			return fmt.Errorf("unexpected EOF in boundary set %s", bcName)
		}
		if itype != 1 {
			// node boundary conditions carry no facets
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			return fmt.Errorf("boundary set %s: malformed entry %q", bcName, scanner.Text())
		}
		elemID, _ := strconv.Atoi(fields[0])
		faceID, _ := strconv.Atoi(fields[2])
		if elemID < 1 || elemID > len(gm.elements) || faceID < 1 || faceID > 4 {
			return fmt.Errorf("boundary set %s: bad element/face %d/%d", bcName, elemID, faceID)
		}
		faces = append(faces, gambitFace{elemID - 1, faceID - 1})
	}
	gm.bcNames = append(gm.bcNames, bcName)
	gm.bcFaces = append(gm.bcFaces, faces)
	return nil
}

func (gm *gambitMesh) toFEMesh() (m *FEMesh, err error) {
	if len(gm.groupIDs) == 0 {
		// a file without groups is a single compartment
		gm.groupIDs = []int{0}
		for k := range gm.groupOf {
			gm.groupOf[k] = 0
		}
	}
	groups := append([]int(nil), gm.groupIDs...)
	sort.Ints(groups)
	cmptOf := make(map[int]int, len(groups))
	for c, g := range groups {
		cmptOf[g] = c
	}
	var (
		nc       = len(groups)
		local    = make([]map[int]int, nc) // global node -> local node
		elemCmpt = make([]int, len(gm.elements))
	)
	m = &FEMesh{Compartments: make([]Compartment, nc)}
	for c := range local {
		local[c] = make(map[int]int)
	}
	// collect nodes per compartment in ascending global order
	nodesOf := make([][]int, nc)
	for k, elem := range gm.elements {
		c, ok := cmptOf[gm.groupOf[k]]
		if !ok {
			return nil, NewValidationError(-1, -1, k, -1, "element belongs to no group")
		}
		elemCmpt[k] = c
		for _, v := range elem {
			if v < 0 || v >= len(gm.vertices) {
				return nil, NewValidationError(c, -1, k, -1, "node %d outside [1,%d]", v+1, len(gm.vertices))
			}
			if _, seen := local[c][v]; !seen {
				local[c][v] = -1
				nodesOf[c] = append(nodesOf[c], v)
			}
		}
	}
	for c := range nodesOf {
		sort.Ints(nodesOf[c])
		cmpt := &m.Compartments[c]
		for i, v := range nodesOf[c] {
			local[c][v] = i
			cmpt.Points = append(cmpt.Points, gm.vertices[v])
		}
	}
	for k, elem := range gm.elements {
		c := elemCmpt[k]
		var le [4]int
		for i, v := range elem {
			le[i] = local[c][v]
		}
		m.Compartments[c].Elements = append(m.Compartments[c].Elements, le)
	}

	toLocal := func(c int, f [3]int) (lf [3]int) {
		for i, v := range f {
			lf[i] = local[c][v]
		}
		return
	}
	// global face -> owning elements, in element order
	owners := make(map[FaceKey][]gambitFace)
	var order []FaceKey
	for k, elem := range gm.elements {
		for lf, f := range GetTetFaces(elem) {
			key := NewFaceKey(f)
			if _, ok := owners[key]; !ok {
				order = append(order, key)
			}
			owners[key] = append(owners[key], gambitFace{k, lf})
		}
	}

	type facetEntry struct {
		boundary, cmpt int
		facet          [3]int
	}
	var (
		entries  []facetEntry
		listed   = make(map[gambitFace]bool)
		names    = append([]string(nil), gm.bcNames...)
		extraIdx = make(map[[2]int]int)
	)
	for b, faces := range gm.bcFaces {
		for _, gf := range faces {
			f := GetTetFaces(gm.elements[gf.elem])[gf.face]
			c := elemCmpt[gf.elem]
			entries = append(entries, facetEntry{b, c, toLocal(c, f)})
			listed[gf] = true
		}
	}
	extra := func(key [2]int, name string) int {
		if b, ok := extraIdx[key]; ok {
			return b
		}
		b := len(names)
		names = append(names, name)
		extraIdx[key] = b
		return b
	}
	for _, key := range order {
		own := owners[key]
		switch len(own) {
		case 1:
			if listed[own[0]] {
				continue
			}
			c := elemCmpt[own[0].elem]
			f := GetTetFaces(gm.elements[own[0].elem])[own[0].face]
			b := extra([2]int{-1, c}, fmt.Sprintf("unlabelled-%d", c))
			entries = append(entries, facetEntry{b, c, toLocal(c, f)})
		case 2:
			c1, c2 := elemCmpt[own[0].elem], elemCmpt[own[1].elem]
			if c1 == c2 || listed[own[0]] || listed[own[1]] {
				continue
			}
			lo, hi := c1, c2
			if lo > hi {
				lo, hi = hi, lo
			}
			b := extra([2]int{lo, hi}, fmt.Sprintf("interface-%d-%d", lo, hi))
			for _, o := range own {
				c := elemCmpt[o.elem]
				f := GetTetFaces(gm.elements[o.elem])[o.face]
				entries = append(entries, facetEntry{b, c, toLocal(c, f)})
			}
		default:
			return nil, NewValidationError(elemCmpt[own[0].elem], -1, own[0].elem, -1,
				"face %v shared by %d elements", key, len(own))
		}
	}

	m.BoundaryNames = names
	m.Facets = make([][][][3]int, nc)
	for c := range m.Facets {
		m.Facets[c] = make([][][3]int, len(names))
	}
	for _, e := range entries {
		m.Facets[e.cmpt][e.boundary] = append(m.Facets[e.cmpt][e.boundary], e.facet)
	}
	if err = m.Validate(); err != nil {
		return nil, err
	}
	return
}
