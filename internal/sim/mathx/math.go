package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// HashU64 mixes two 64-bit words, e.g. an entity seed and a tick counter.
func HashU64(a, b uint64) uint64 {
	return mix64(a ^ (b * 0xc2b2ae3d27d4eb4f))
}

// Unit maps a hash to [0, 1).
func Unit(h uint64) float64 {
	return float64(h>>11) / float64(1<<53)
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func V2(x, y float64) Vec2    { return Vec2{X: x, Y: y} }
func V3(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec2) Add(b Vec2) Vec2       { return Vec2{a.X + b.X, a.Y + b.Y} }
func (a Vec2) Sub(b Vec2) Vec2       { return Vec2{a.X - b.X, a.Y - b.Y} }
func (a Vec2) Scale(s float64) Vec2  { return Vec2{a.X * s, a.Y * s} }
func (a Vec2) Dot(b Vec2) float64    { return a.X*b.X + a.Y*b.Y }
func (a Vec2) LenSq() float64        { return a.Dot(a) }
func (a Vec2) Len() float64          { return math.Sqrt(a.LenSq()) }
func (a Vec2) DistSq(b Vec2) float64 { return a.Sub(b).LenSq() }
func (a Vec2) WithZ(z float64) Vec3  { return Vec3{a.X, a.Y, z} }
func (a Vec2) IsZero() bool          { return a.X == 0 && a.Y == 0 }
func (a Vec2) Normalized() (Vec2, bool) {
	l := a.Len()
	if l < 1e-9 || math.IsNaN(l) {
		return Vec2{}, false
	}
	return a.Scale(1 / l), true
}

func (a Vec3) Add(b Vec3) Vec3       { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3       { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Scale(s float64) Vec3  { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64    { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) LenSq() float64        { return a.Dot(a) }
func (a Vec3) Len() float64          { return math.Sqrt(a.LenSq()) }
func (a Vec3) DistSq(b Vec3) float64 { return a.Sub(b).LenSq() }
func (a Vec3) XY() Vec2              { return Vec2{a.X, a.Y} }
func (a Vec3) Normalized() (Vec3, bool) {
	l := a.Len()
	if l < 1e-9 || math.IsNaN(l) {
		return Vec3{}, false
	}
	return a.Scale(1 / l), true
}
