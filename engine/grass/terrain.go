package grass

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"os"
	"slices"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/chewxy/math32"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ErrInvalidTerrain is returned for terrains with a non-positive size or a heightmap that
// does not match its resolution.
var ErrInvalidTerrain = errors.New("grass: invalid terrain")

// Terrain is the read-only heightfield grass is placed on. It covers the square
// [Origin.xy, Origin.xy + Size] with +Z up. Heights holds Width × Height samples in row
// major order, row 0 at the lowest world Y, usually normalized to [0, 1]; the world height
// of a sample is Origin.z + sample × HeightScale.
type Terrain struct {
	Origin      [3]float32
	Size        float32
	HeightScale float32

	Width   int
	Height  int
	Heights []float32
}

// NewTerrain creates a terrain and validates it.
//
// Parameters:
//   - origin: the world position of the terrain's minimum corner
//   - size: the world extent along X and Y
//   - heightScale: the world height of a sample value of 1
//   - width: the heightmap resolution along X
//   - height: the heightmap resolution along Y
//   - heights: width × height samples, row major
//
// Returns:
//   - *Terrain: the terrain
//   - error: ErrInvalidTerrain if the parameters are inconsistent
func NewTerrain(origin [3]float32, size, heightScale float32, width, height int, heights []float32) (*Terrain, error) {
	t := &Terrain{
		Origin:      origin,
		Size:        size,
		HeightScale: heightScale,
		Width:       width,
		Height:      height,
		Heights:     heights,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// FlatTerrain returns a single-sample terrain whose surface lies at origin.z everywhere.
//
// Parameters:
//   - origin: the world position of the terrain's minimum corner
//   - size: the world extent along X and Y
//
// Returns:
//   - *Terrain: the flat terrain
func FlatTerrain(origin [3]float32, size float32) *Terrain {
	return &Terrain{Origin: origin, Size: size, Width: 1, Height: 1, Heights: []float32{0}}
}

// LoadHeightmap decodes a PNG, TIFF or BMP image into a terrain. Every pixel becomes one
// sample: its 16-bit luminance divided by 65535. Image row 0 maps to the lowest world Y.
//
// Parameters:
//   - path: the image file
//   - origin: the world position of the terrain's minimum corner
//   - size: the world extent along X and Y
//   - heightScale: the world height of a white pixel
//
// Returns:
//   - *Terrain: the terrain
//   - error: an error if the file cannot be decoded
func LoadHeightmap(path string, origin [3]float32, size, heightScale float32) (*Terrain, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open heightmap: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode heightmap %q: %w", path, err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	heights := make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			heights[y*w+x] = float32(g.Y) / 65535
		}
	}
	common.Logger().Debug("heightmap loaded", "path", path, "format", format, "width", w, "height", h)
	return NewTerrain(origin, size, heightScale, w, h, heights)
}

// Validate checks that the terrain has a positive size, a finite placement and a complete
// heightmap.
func (t *Terrain) Validate() error {
	switch {
	case !(t.Size > 0) || math32.IsInf(t.Size, 0):
		return fmt.Errorf("%w: size %v", ErrInvalidTerrain, t.Size)
	case !finite(t.Origin[0]) || !finite(t.Origin[1]) || !finite(t.Origin[2]):
		return fmt.Errorf("%w: origin %v", ErrInvalidTerrain, t.Origin)
	case !finite(t.HeightScale):
		return fmt.Errorf("%w: height scale %v", ErrInvalidTerrain, t.HeightScale)
	case t.Width <= 0 || t.Height <= 0:
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidTerrain, t.Width, t.Height)
	case len(t.Heights) != t.Width*t.Height:
		return fmt.Errorf("%w: %d samples for %dx%d", ErrInvalidTerrain, len(t.Heights), t.Width, t.Height)
	}
	return nil
}

func finite(v float32) bool {
	return !math32.IsNaN(v) && !math32.IsInf(v, 0)
}

// Texel maps a world XY position to the heightmap sample covering it. Positions outside
// the terrain resolve to the nearest edge sample.
//
// Every step is rounded to float32 in the same order as the generation kernel's texel
// function, so the CPU and GPU pick the same sample for the same position.
//
// Parameters:
//   - x: world X
//   - y: world Y
//
// Returns:
//   - int: the sample column
//   - int: the sample row
func (t *Terrain) Texel(x, y float32) (int, int) {
	u := float32(float32(x-t.Origin[0]) / t.Size)
	v := float32(float32(y-t.Origin[1]) / t.Size)
	fx := math32.Floor(float32(u * float32(t.Width)))
	fy := math32.Floor(float32(v * float32(t.Height)))
	return int(common.Clamp(fx, 0, float32(t.Width-1))), int(common.Clamp(fy, 0, float32(t.Height-1)))
}

// SampleHeight returns the world Z of the terrain surface at a world XY position.
//
// Parameters:
//   - x: world X
//   - y: world Y
//
// Returns:
//   - float32: the world height
func (t *Terrain) SampleHeight(x, y float32) float32 {
	tx, ty := t.Texel(x, y)
	return float32(t.Origin[2] + float32(t.Heights[ty*t.Width+tx]*t.HeightScale))
}

// SurfaceNormal returns the unit terrain normal at a world XY position, computed by
// central differences one sample apart.
//
// Parameters:
//   - x: world X
//   - y: world Y
//
// Returns:
//   - [3]float32: the normal, +Z on flat ground
func (t *Terrain) SurfaceNormal(x, y float32) [3]float32 {
	sx := t.Size / float32(t.Width)
	sy := t.Size / float32(t.Height)
	gx := (t.SampleHeight(x+sx, y) - t.SampleHeight(x-sx, y)) / (2 * sx)
	gy := (t.SampleHeight(x, y+sy) - t.SampleHeight(x, y-sy)) / (2 * sy)
	l := math32.Sqrt(gx*gx + gy*gy + 1)
	return [3]float32{-gx / l, -gy / l, 1 / l}
}

// HeightRange returns the lowest and highest world Z over the whole heightmap.
func (t *Terrain) HeightRange() (lo, hi float32) {
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	for _, h := range t.Heights {
		z := float32(t.Origin[2] + float32(h*t.HeightScale))
		lo, hi = min(lo, z), max(hi, z)
	}
	return lo, hi
}

// Bytes copies the samples out as f32 values for the heights storage buffer. The layout
// is the host's native one, which is little-endian on every target WebGPU runs on.
func (t *Terrain) Bytes() []byte {
	return slices.Clone(common.SliceToBytes(t.Heights))
}
