package InputParameters

import (
	"fmt"
	"math"
	"strings"

	"github.com/ghodss/yaml"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/gobloch/btpde"
	"github.com/notargets/gobloch/fem"
	"github.com/notargets/gobloch/mesh"
	"github.com/notargets/gobloch/sequence"
	"github.com/notargets/gobloch/utils"
)

// MeshParameters selects a Gambit file or, when File is empty, a box made of
// layers stacked along x.
type MeshParameters struct {
	File   string     `json:"File"`
	Layers []float64  `json:"Layers"` // x breakpoints, len(Cells)+1 of them
	Cells  []int      `json:"Cells"`  // cells along x per layer
	NY     int        `json:"NY"`
	NZ     int        `json:"NZ"`
	YRange [2]float64 `json:"YRange"` // a bare Y key reads as a YAML 1.1 boolean
	ZRange [2]float64 `json:"ZRange"`
}

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title          string         `json:"Title"`
	Mesh           MeshParameters `json:"Mesh"`
	Diffusivity    []float64      `json:"Diffusivity"`    // Per compartment
	Relaxation     []float64      `json:"Relaxation"`     // Per compartment T2, 0 means none
	Permeability   []float64      `json:"Permeability"`   // Per boundary, or one value for every interface
	InitialDensity []float64      `json:"InitialDensity"` // Per compartment
	Gamma          float64        `json:"Gamma"`
	Sequence       string         `json:"Sequence"`
	SmallDelta     float64        `json:"SmallDelta"`
	Delta          float64        `json:"Delta"`
	Mixing         float64        `json:"Mixing"`
	NPeriod        int            `json:"NPeriod"`
	BValues        []float64      `json:"BValues"`
	Directions     [][3]float64   `json:"Directions"`
	Theta          float64        `json:"Theta"`
	TimeStep       float64        `json:"TimeStep"`
	Factorization  string         `json:"Factorization"`
	Parallelism    int            `json:"Parallelism"`
}

// Parse reads YAML input and fills in defaults for omitted fields.
func (ip *InputParameters) Parse(data []byte) error {
	ip.Theta = -1
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	if ip.Theta < 0 {
		ip.Theta = 0.5
	}
	if ip.TimeStep == 0 {
		ip.TimeStep = 1
	}
	if ip.Gamma == 0 {
		ip.Gamma = fem.GammaProton
	}
	if ip.Sequence == "" {
		ip.Sequence = "PGSE"
	}
	if ip.NPeriod == 0 {
		ip.NPeriod = 1
	}
	if len(ip.Directions) == 0 {
		ip.Directions = [][3]float64{{1, 0, 0}}
	}
	if ip.Mesh.File == "" {
		mp := &ip.Mesh
		if len(mp.Cells) == 0 {
			mp.Cells = []int{4}
		}
		if len(mp.Layers) == 0 {
			mp.Layers = []float64{0, 1}
		}
		if mp.NY == 0 {
			mp.NY = mp.Cells[0]
		}
		if mp.NZ == 0 {
			mp.NZ = mp.Cells[0]
		}
		if mp.YRange == [2]float64{} {
			mp.YRange = [2]float64{0, 1}
		}
		if mp.ZRange == [2]float64{} {
			mp.ZRange = [2]float64{0, 1}
		}
	}
	return nil
}

func (ip *InputParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	if ip.Mesh.File != "" {
		fmt.Printf("[%s]\t\t= Mesh File\n", ip.Mesh.File)
	} else {
		fmt.Printf("%v\t\t= Layer Breakpoints\n", ip.Mesh.Layers)
		fmt.Printf("%v x %d x %d\t\t= Cells\n", ip.Mesh.Cells, ip.Mesh.NY, ip.Mesh.NZ)
		fmt.Printf("%v x %v\t\t= Y, Z Ranges\n", ip.Mesh.YRange, ip.Mesh.ZRange)
	}
	fmt.Printf("%v\t\t= Diffusivity\n", ip.Diffusivity)
	fmt.Printf("%v\t\t= Relaxation T2\n", ip.Relaxation)
	fmt.Printf("%v\t\t= Permeability\n", ip.Permeability)
	fmt.Printf("%8.5g\t\t= Gamma\n", ip.Gamma)
	fmt.Printf("[%s]\t\t\t= Sequence (δ=%g, Δ=%g)\n", ip.Sequence, ip.SmallDelta, ip.Delta)
	fmt.Printf("%v\t\t= b-values\n", ip.BValues)
	fmt.Printf("%v\t\t= Directions\n", ip.Directions)
	fmt.Printf("%8.5f\t\t= Theta\n", ip.Theta)
	fmt.Printf("%8.5f\t\t= TimeStep\n", ip.TimeStep)
	fmt.Printf("[%s]\t\t\t= Factorization\n", ip.Factorization)
}

// NewMesh reads or generates the mesh.
func (ip *InputParameters) NewMesh() (*mesh.FEMesh, error) {
	mp := ip.Mesh
	if mp.File != "" {
		return mesh.ReadMeshFile(mp.File)
	}
	return mesh.NewLayeredBox(mp.Layers, mp.Cells, mp.NY, mp.NZ, mp.YRange, mp.ZRange)
}

// Coefficients builds the physical coefficients for m. Permeability is
// either one value per boundary or a single value applied to every
// interface, outer boundaries then staying impermeable. A mesh with one
// boundary takes a single value as per boundary.
func (ip *InputParameters) Coefficients(m *mesh.FEMesh) (c fem.Coefficients, err error) {
	var (
		nc    = m.NCompartments()
		nb    = m.NBoundaries()
		relax = make([]float64, nc)
		perm  = make([]float64, nb)
	)
	if len(ip.Relaxation) != 0 && len(ip.Relaxation) != nc {
		return c, fmt.Errorf("%d relaxation times for %d compartments", len(ip.Relaxation), nc)
	}
	for i := range relax {
		relax[i] = math.Inf(1)
		if i < len(ip.Relaxation) && ip.Relaxation[i] != 0 {
			relax[i] = ip.Relaxation[i]
		}
	}
	switch len(ip.Permeability) {
	case 0:
	case nb:
		copy(perm, ip.Permeability)
	case 1:
		for b := range perm {
			if len(m.Touching(b)) == 2 {
				perm[b] = ip.Permeability[0]
			}
		}
	default:
		return c, fmt.Errorf("%d permeabilities for %d boundaries", len(ip.Permeability), nb)
	}
	c = fem.IsotropicCoefficients(ip.Diffusivity, relax, perm, ip.Gamma)
	err = c.Validate(m)
	return
}

// Rho is the initial spin density, one per compartment by default.
func (ip *InputParameters) Rho(nc int) []float64 {
	if len(ip.InitialDensity) != 0 {
		return ip.InitialDensity
	}
	return utils.ConstArray(nc, 1)
}

func (ip *InputParameters) Profile() (sequence.Profile, error) {
	return sequence.NewProfile(ip.Sequence, ip.SmallDelta, ip.Delta, ip.Mixing, ip.NPeriod)
}

// Experiment is one (b-value, direction) pair of the acquisition.
type Experiment struct {
	BValue    float64
	Direction r3.Vec
	Gradient  sequence.Gradient
}

func (e Experiment) String() string {
	return fmt.Sprintf("b=%g dir=(%.3g,%.3g,%.3g)", e.BValue, e.Direction.X, e.Direction.Y, e.Direction.Z)
}

// Experiments lists every b-value and direction combination, b-values outer.
func (ip *InputParameters) Experiments() (ex []Experiment, err error) {
	p, err := ip.Profile()
	if err != nil {
		return nil, err
	}
	if len(ip.BValues) == 0 {
		return nil, fmt.Errorf("no b-values given")
	}
	for _, b := range ip.BValues {
		if b < 0 {
			return nil, fmt.Errorf("negative b-value %g", b)
		}
		for _, d := range ip.Directions {
			dir := r3.Vec{X: d[0], Y: d[1], Z: d[2]}
			g, err := sequence.NewGradientFromBValue(b, ip.Gamma, dir, p)
			if err != nil {
				return nil, err
			}
			ex = append(ex, Experiment{BValue: b, Direction: g.Direction, Gradient: g})
		}
	}
	return
}

func (ip *InputParameters) SolverOptions() (opts btpde.Options, err error) {
	opts = btpde.Options{Theta: ip.Theta, TimeStep: ip.TimeStep}
	if opts.Factorization, err = utils.NewFactorizationKind(ip.Factorization); err != nil {
		return
	}
	err = opts.Validate()
	return
}

func (ip *InputParameters) AssemblyOptions() fem.Options {
	return fem.Options{Parallelism: ip.Parallelism}
}

// Example is a complete input file for a two layer box.
var Example = strings.TrimLeft(`
########################################
Title: "Two layer slab"
Mesh:
  Layers: [0, 5, 10]   # x breakpoints
  Cells: [4, 4]
  NY: 4
  NZ: 4
  YRange: [0, 5]
  ZRange: [0, 5]
Diffusivity: [2.e-3, 1.e-3]
Relaxation: [0, 0]             # T2, 0 disables relaxation
Permeability: [1.e-5]          # on every interface
Sequence: PGSE                 # PGSE, DoublePGSE, CosOGSE or SinOGSE
SmallDelta: 2500
Delta: 5000
BValues: [0, 1000, 3000]
Directions: [[1, 0, 0], [0, 1, 0], [1, 1, 1]]
Theta: 0.5
TimeStep: 50
Factorization: banded
########################################
`, "\n")
