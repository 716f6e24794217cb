package curvefit

import (
	"fmt"
	"math"
)

const singularPivot = 1e-12

// Parabola is c0 + c1*u + c2*u² with u = (x - Mid) / Half, the x domain of
// the fitted points mapped onto [-1, 1].
type Parabola struct {
	Coef [3]float64 `json:"coef"`
	Mid  float64    `json:"mid"`
	Half float64    `json:"half"`
}

func (p Parabola) Eval(x float64) float64 {
	u := (x - p.Mid) / p.Half
	return p.Coef[0] + u*(p.Coef[1]+u*p.Coef[2])
}

func (p Parabola) Concave() bool {
	return p.Coef[2] < 0
}

// Vertex returns the x and value of the turning point.
func (p Parabola) Vertex() (float64, float64) {
	u := -p.Coef[1] / (2 * p.Coef[2])
	x := p.Mid + p.Half*u
	return x, p.Eval(x)
}

// FitParabola computes the least squares parabola through the points.
func FitParabola(xs, ys []float64) (Parabola, error) {
	if len(xs) != len(ys) {
		return Parabola{}, fmt.Errorf("curvefit: %d x values for %d y values", len(xs), len(ys))
	}
	if len(xs) < 3 {
		return Parabola{}, fmt.Errorf("%w: %d points", ErrInsufficientFitData, len(xs))
	}

	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	p := Parabola{Mid: (lo + hi) / 2, Half: (hi - lo) / 2}
	if p.Half == 0 {
		return Parabola{}, fmt.Errorf("%w: all points at x=%g", ErrInsufficientFitData, lo)
	}

	// Normal equations: sum(u^(i+j)) * c_j = sum(y * u^i)
	var powers [5]float64
	var rhs [3]float64
	for k, x := range xs {
		u := (x - p.Mid) / p.Half
		term := 1.0
		for i := 0; i < 5; i++ {
			powers[i] += term
			if i < 3 {
				rhs[i] += ys[k] * term
			}
			term *= u
		}
	}
	var m [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = powers[i+j]
		}
		m[i][3] = rhs[i]
	}

	coef, err := solve3(m)
	if err != nil {
		return Parabola{}, err
	}
	p.Coef = coef
	return p, nil
}

// solve3 solves an augmented 3x3 system by Gaussian elimination with
// partial pivoting.
func solve3(m [3][4]float64) ([3]float64, error) {
	for col := 0; col < 3; col++ {
		pivot := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(m[r][col]) > math.Abs(m[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(m[pivot][col]) < singularPivot {
			return [3]float64{}, fmt.Errorf("%w: fewer than 3 distinct times", ErrInsufficientFitData)
		}
		m[col], m[pivot] = m[pivot], m[col]
		for r := col + 1; r < 3; r++ {
			f := m[r][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[r][k] -= f * m[col][k]
			}
		}
	}

	var x [3]float64
	for r := 2; r >= 0; r-- {
		sum := m[r][3]
		for k := r + 1; k < 3; k++ {
			sum -= m[r][k] * x[k]
		}
		x[r] = sum / m[r][r]
	}
	return x, nil
}
