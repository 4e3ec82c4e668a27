package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 1 / deg2rad
)

// GateThresholdChiSquare3 is the default chi-squared gate threshold on 3
// degrees of freedom, used by the gating component unless overridden by
// configuration.
const GateThresholdChiSquare3 = 9.21

// Sph2Cart converts spherical radar coordinates (azimuth, elevation in
// degrees, range) into Cartesian (x, y, z).
func Sph2Cart(azDeg, elDeg, r float64) (x, y, z float64) {
	az := azDeg * deg2rad
	el := elDeg * deg2rad
	x = r * math.Cos(el) * math.Sin(az)
	y = r * math.Cos(el) * math.Cos(az)
	z = r * math.Sin(el)
	return
}

// Cart2Sph is the left inverse of Sph2Cart on the domain r > 0.
func Cart2Sph(x, y, z float64) (azDeg, elDeg, r float64) {
	r = math.Sqrt(x*x + y*y + z*z)
	if r == 0 {
		return 0, 0, 0
	}
	elDeg = math.Asin(z/r) * rad2deg
	azDeg = math.Atan2(x, y) * rad2deg
	if azDeg < 0 {
		azDeg += 360
	}
	return
}

// SquaredNorm returns the squared Euclidean norm of a 3-vector.
func SquaredNorm(x, y, z float64) float64 {
	return x*x + y*y + z*z
}

// Mahalanobis computes the squared Mahalanobis distance between two 3-point
// positions given a Cholesky factorization of the innovation covariance. It
// is always non-negative and zero iff a == b.
//
// The underlying distance is computed by gonum's stat.Mahalanobis, the
// modern successor to the teacher's own github.com/gonum/stat/distmv
// package (which station.go uses for its measurement-noise model); that
// function returns the unsquared distance, so the result is squared here to
// keep this module's existing convention of comparing against
// GateThresholdChiSquare3 and weighting JPDA hypotheses by exp(-0.5*d²).
func Mahalanobis(a, b [3]float64, chol *mat.Cholesky) float64 {
	x := mat.NewVecDense(3, []float64{a[0], a[1], a[2]})
	y := mat.NewVecDense(3, []float64{b[0], b[1], b[2]})
	d := stat.Mahalanobis(x, y, chol)
	return d * d
}
