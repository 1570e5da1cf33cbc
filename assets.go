package trafficview

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRequiredAsset wraps the failure of a model the viewer cannot run
// without.
var ErrRequiredAsset = errors.New("trafficview: required asset failed to load")

// Model is finished, renderable geometry produced by a loader. Models face
// local -Z and are centered on the origin at ground level.
type Model struct {
	Name      string
	Mesh      *Mesh
	Materials []*Material
	// BaseColor is the default tint of material slot 0.
	BaseColor Color
	// Length is the nominal model length along Z; agents are stretched to
	// their reported length when both are known.
	Length float64
	// Offset moves the model further back from the agent's front reference
	// point, beyond half its length.
	Offset float64
	// Footprint is the clearance radius used when scattering decoration.
	Footprint float64
}

// ModelRole says what a loaded model is used for.
type ModelRole uint8

const (
	RoleAgent ModelRole = iota
	RoleDecoration
)

// ModelSpec names one model to load.
type ModelSpec struct {
	Name     string
	Role     ModelRole
	Class    VehicleClass // RoleAgent: the pool the model joins
	Weight   float64      // RoleDecoration: relative frequency
	Required bool
}

// ModelLoader turns a model name into geometry. Parsing asset formats is
// the loader's business.
type ModelLoader interface {
	LoadModel(ctx context.Context, name string) (*Model, error)
}

// ModelLibrary is the set of loaded models: one variant pool per vehicle
// class plus decoration models.
type ModelLibrary struct {
	pools       map[VehicleClass][]*Model
	decorations []DecorationModel
}

// NewModelLibrary returns an empty library.
func NewModelLibrary() *ModelLibrary {
	return &ModelLibrary{pools: make(map[VehicleClass][]*Model)}
}

// AddAgentModel appends m to the variant pool of class c.
func (l *ModelLibrary) AddAgentModel(c VehicleClass, m *Model) {
	l.pools[c] = append(l.pools[c], m)
}

// AddDecoration registers a scattered scenery model.
func (l *ModelLibrary) AddDecoration(m *Model, weight float64) {
	l.decorations = append(l.decorations, DecorationModel{Model: m, Weight: weight})
}

// Pool returns the variants for class c.
func (l *ModelLibrary) Pool(c VehicleClass) []*Model {
	return l.pools[c]
}

// Decorations returns the scattered scenery models.
func (l *ModelLibrary) Decorations() []DecorationModel {
	return l.decorations
}

// LoadModels loads every spec concurrently. A failing required model aborts
// the whole load with ErrRequiredAsset; an optional one is logged and left
// out. Pools keep the order of specs so variant indexes are reproducible.
func LoadModels(ctx context.Context, loader ModelLoader, specs []ModelSpec) (*ModelLibrary, error) {
	results := make([]*Model, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, spec := range specs {
		g.Go(func() error {
			m, err := loader.LoadModel(gctx, spec.Name)
			if err != nil {
				if spec.Required {
					return fmt.Errorf("%w: %s: %v", ErrRequiredAsset, spec.Name, err)
				}
				logger.WithFields(logrus.Fields{"model": spec.Name}).WithError(err).
					Warn("optional model failed to load")
				return nil
			}
			results[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	lib := NewModelLibrary()
	for i, spec := range specs {
		m := results[i]
		if m == nil {
			continue
		}
		switch spec.Role {
		case RoleAgent:
			lib.AddAgentModel(spec.Class, m)
		case RoleDecoration:
			lib.AddDecoration(m, spec.Weight)
		}
	}
	return lib, nil
}

// --- Built-in models ---

type builtinModel struct {
	size      mgl64.Vec3
	cab       bool
	color     Color
	offset    float64
	footprint float64
}

var builtinModels = map[string]builtinModel{
	"sedan":      {size: mgl64.Vec3{1.8, 1.4, 4.5}, cab: true, color: Color{0.75, 0.15, 0.15, 1}},
	"hatchback":  {size: mgl64.Vec3{1.7, 1.5, 3.9}, cab: true, color: Color{0.15, 0.35, 0.75, 1}},
	"suv":        {size: mgl64.Vec3{1.9, 1.8, 4.8}, cab: true, color: Color{0.2, 0.2, 0.2, 1}},
	"van":        {size: mgl64.Vec3{2.0, 2.2, 5.2}, cab: true, color: Color{0.9, 0.9, 0.9, 1}},
	"pickup":     {size: mgl64.Vec3{2.0, 1.8, 5.4}, cab: true, color: Color{0.3, 0.45, 0.3, 1}},
	"coupe":      {size: mgl64.Vec3{1.8, 1.3, 4.3}, cab: true, color: Color{0.95, 0.75, 0.1, 1}},
	"bus":        {size: mgl64.Vec3{2.5, 3.2, 12}, cab: true, color: Color{0.95, 0.6, 0.1, 1}},
	"truck":      {size: mgl64.Vec3{2.5, 3.5, 8}, cab: true, color: Color{0.5, 0.5, 0.55, 1}},
	"motorcycle": {size: mgl64.Vec3{0.8, 1.3, 2.2}, color: Color{0.1, 0.1, 0.1, 1}},
	"bicycle":    {size: mgl64.Vec3{0.6, 1.7, 1.8}, color: Color{0.1, 0.6, 0.3, 1}},
	"pedestrian": {size: mgl64.Vec3{0.5, 1.8, 0.5}, color: Color{0.85, 0.65, 0.5, 1}},
	"tram":       {size: mgl64.Vec3{2.4, 3.4, 30}, cab: true, color: Color{0.85, 0.1, 0.1, 1}},
	"train":      {size: mgl64.Vec3{3.0, 4.0, 60}, cab: true, color: Color{0.2, 0.3, 0.6, 1}},
	"tree":       {footprint: 2},
	"block":      {size: mgl64.Vec3{10, 9, 10}, color: Color{0.75, 0.72, 0.68, 1}, footprint: 8},
}

// BuiltinLoader produces simple box models for the names in builtinModels.
// It stands in for a real asset loader in tests and in the demo viewer.
type BuiltinLoader struct{}

// LoadModel implements ModelLoader.
func (BuiltinLoader) LoadModel(ctx context.Context, name string) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	spec, ok := builtinModels[name]
	if !ok {
		return nil, fmt.Errorf("trafficview: no built-in model %q", name)
	}
	if name == "tree" {
		trunk := NewMaterial(MaterialFixture)
		trunk.Color = Color{0.4, 0.27, 0.15, 1}
		return &Model{
			Name:      name,
			Mesh:      treeMesh(),
			Materials: []*Material{trunk, NewMaterial(MaterialTree)},
			BaseColor: defaultKindColors[MaterialTree],
			Footprint: spec.footprint,
		}, nil
	}
	body := boxMesh(spec.size)
	mesh := body
	if spec.cab {
		cab := boxMesh(mgl64.Vec3{spec.size[0] * 0.9, spec.size[1] * 0.35, spec.size[2] * 0.3})
		translateMesh(cab, mgl64.Vec3{0, spec.size[1] * 0.65, -spec.size[2] * 0.2})
		mesh = MergeMeshes(body, setMaterialSlot(cab, 1))
	}
	agent := NewMaterial(MaterialAgent)
	agent.Color = spec.color
	glass := NewMaterial(MaterialFixture)
	glass.Color = Color{0.15, 0.2, 0.25, 1}
	return &Model{
		Name:      name,
		Mesh:      mesh,
		Materials: []*Material{agent, glass},
		BaseColor: spec.color,
		Length:    spec.size[2],
		Footprint: math.Max(spec.footprint, spec.size[0]/2),
	}, nil
}

// DefaultModelSpecs is the built-in model set: several passenger variants,
// one model per other class, and trees plus filler blocks as decoration.
func DefaultModelSpecs() []ModelSpec {
	specs := []ModelSpec{}
	for _, n := range []string{"sedan", "hatchback", "suv", "van", "pickup", "coupe"} {
		specs = append(specs, ModelSpec{Name: n, Role: RoleAgent, Class: ClassPassenger, Required: true})
	}
	for _, c := range []VehicleClass{ClassTaxi, ClassDelivery, ClassEmergency} {
		specs = append(specs, ModelSpec{Name: "sedan", Role: RoleAgent, Class: c})
	}
	specs = append(specs,
		ModelSpec{Name: "bus", Role: RoleAgent, Class: ClassBus, Required: true},
		ModelSpec{Name: "bus", Role: RoleAgent, Class: ClassCoach},
		ModelSpec{Name: "truck", Role: RoleAgent, Class: ClassTruck},
		ModelSpec{Name: "truck", Role: RoleAgent, Class: ClassTrailer},
		ModelSpec{Name: "motorcycle", Role: RoleAgent, Class: ClassMotorcycle},
		ModelSpec{Name: "motorcycle", Role: RoleAgent, Class: ClassMoped},
		ModelSpec{Name: "bicycle", Role: RoleAgent, Class: ClassBicycle, Required: true},
		ModelSpec{Name: "pedestrian", Role: RoleAgent, Class: ClassPedestrian, Required: true},
		ModelSpec{Name: "tram", Role: RoleAgent, Class: ClassTram},
		ModelSpec{Name: "tram", Role: RoleAgent, Class: ClassRailUrban},
		ModelSpec{Name: "train", Role: RoleAgent, Class: ClassRail},
		ModelSpec{Name: "train", Role: RoleAgent, Class: ClassRailElectric},
		ModelSpec{Name: "tree", Role: RoleDecoration, Weight: 4},
		ModelSpec{Name: "block", Role: RoleDecoration, Weight: 1},
	)
	return specs
}
