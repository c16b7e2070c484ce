package fieldsim

import(
	"fmt"
	"sync"

	"github.com/abworrall/soss-contam/pkg/emath"
)

// AngleInfo describes one angle plane of the cube.
type AngleInfo struct {
	PA    float64 `yaml:"pa"`    // Position angle, degrees
	V3PA  float64 `yaml:"v3pa"`  // The same angle in the platform frame
	Plane int     `yaml:"plane"` // Index into the cube
}

// SimulationCube is the output of a run: planes 0 and 1 hold the
// target's first and second order traces, and plane k+2 holds the field
// star contamination at the k'th angle of the sweep.
//
// The two order planes are written at most once. Angle planes only ever
// accumulate, and each is written by a single goroutine.
type SimulationCube struct {
	width, height int
	angles        []AngleInfo
	planes        []emath.FloatGrid

	refOnce    sync.Once
	refWritten bool

	mu        sync.Mutex
	completed []bool
}

// PlaneIndex maps an angle index to its plane in the cube.
func PlaneIndex(k int) int { return k + 2 }

func NewSimulationCube(angles []float64, width, height int) *SimulationCube {
	c := &SimulationCube{
		width:     width,
		height:    height,
		angles:    make([]AngleInfo, len(angles)),
		planes:    make([]emath.FloatGrid, len(angles)+2),
		completed: make([]bool, len(angles)),
	}
	for k, pa := range angles {
		c.angles[k] = AngleInfo{PA: pa, V3PA: pa, Plane: PlaneIndex(k)}
	}
	for i := range c.planes {
		c.planes[i] = emath.NewFloatGrid(width, height)
	}
	return c
}

func (c *SimulationCube)String() string {
	n, h, w := c.Shape()
	return fmt.Sprintf("SimulationCube[%d x %d x %d, %d/%d angles done]", n, h, w, len(c.Completed()), len(c.angles))
}

// Shape is (planes, height, width).
func (c *SimulationCube)Shape() (int, int, int) { return len(c.planes), c.height, c.width }

func (c *SimulationCube)NumPlanes() int                 { return len(c.planes) }
func (c *SimulationCube)Plane(i int) *emath.FloatGrid   { return &c.planes[i] }
func (c *SimulationCube)AnglePlane(k int) *emath.FloatGrid { return &c.planes[PlaneIndex(k)] }
func (c *SimulationCube)Angles() []AngleInfo            { return append([]AngleInfo(nil), c.angles...) }

// Order returns the reference plane for the target's spectral order n
// (1 or 2).
func (c *SimulationCube)Order(n int) *emath.FloatGrid {
	if n != 1 && n != 2 {
		panic(fmt.Sprintf("SimulationCube.Order(%d): only orders 1 and 2 exist", n))
	}
	return &c.planes[n-1]
}

// WriteReference runs fn on the two order planes, the first time it is
// called. Later calls do nothing and report false.
func (c *SimulationCube)WriteReference(fn func(o1, o2 *emath.FloatGrid) error) (bool, error) {
	ran := false
	var err error
	c.refOnce.Do(func() {
		ran = true
		err = fn(c.Order(1), c.Order(2))
		c.mu.Lock()
		c.refWritten = err == nil
		c.mu.Unlock()
	})
	return ran, err
}

// HasReference says whether the order planes have been written.
func (c *SimulationCube)HasReference() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refWritten
}

func (c *SimulationCube)markCompleted(k int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed[k] = true
}

// Completed lists the angle indices whose planes are fully composited.
// After a cancelled run these planes are still valid.
func (c *SimulationCube)Completed() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := []int{}
	for k, done := range c.completed {
		if done {
			ret = append(ret, k)
		}
	}
	return ret
}
