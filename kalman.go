package track

import (
	"fmt"
	"os"

	"github.com/ChristopherRabotin/gokalman"
	kitlog "github.com/go-kit/kit/log"
	legacymat "github.com/gonum/matrix/mat64"
	"gonum.org/v1/gonum/mat"
)

// FilterVariant selects the kinematic model carried by a Filter.
type FilterVariant uint8

const (
	// CV is the constant-velocity variant: state = [x,y,z,vx,vy,vz].
	CV FilterVariant = iota
	// CA is the constant-acceleration variant: state adds [ax,ay,az].
	CA
)

func (v FilterVariant) String() string {
	switch v {
	case CV:
		return "CV"
	case CA:
		return "CA"
	default:
		panic("unknown filter variant")
	}
}

func (v FilterVariant) dim() int {
	if v == CA {
		return 9
	}
	return 6
}

// FilterState is the estimator's persistent vectors, appended to a Track's
// history once per ingest. Sf/Sp are dim-length column vectors, Pf/Pp are
// dim x dim covariances.
type FilterState struct {
	Sf, Sp *mat.VecDense
	Pf, Pp *mat.Dense
}

// Filter is a per-track Kalman estimator. Per the shared-singleton design
// note, production code always constructs one Filter per Track; see
// LegacySharedFilter for the deprecated shared-singleton compatibility mode.
type Filter struct {
	Variant    FilterVariant
	PlantNoise float64 // scalar driving Q
	TrackID    int     // set by Manager.Birth; used to tag NumericalError

	dim int
	H   *mat.Dense // measurement matrix, 3 x dim
	R   *mat.Dense // measurement noise covariance, 3x3 identity

	State FilterState

	logger kitlog.Logger
}

// NewFilter returns a Filter of the given variant with identity-seeded
// covariances, mirroring the teacher's NewOrbitEstimate constructor style.
func NewFilter(variant FilterVariant, plantNoise float64) *Filter {
	dim := variant.dim()
	h := mat.NewDense(3, dim, nil)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)
	h.Set(2, 2, 1)

	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "component", "kalman", "variant", variant.String())

	f := &Filter{
		Variant:    variant,
		PlantNoise: plantNoise,
		dim:        dim,
		H:          h,
		R:          identity(3),
		logger:     klog,
	}
	f.State = FilterState{
		Sf: mat.NewVecDense(dim, nil),
		Sp: mat.NewVecDense(dim, nil),
		Pf: identity(dim),
		Pp: identity(dim),
	}
	return f
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}

// Initialize sets the filter state at a measured position, per spec.md
// §4.6's state-conditional initialization policy. Velocity (and
// acceleration, for CA) default to zero; callers seed velocity explicitly
// via InitializeWithVelocity for the Tentative1 case.
func (f *Filter) Initialize(pos [3]float64) {
	f.InitializeWithVelocity(pos, [3]float64{0, 0, 0})
}

// InitializeWithVelocity seeds position and velocity (accelerations, for
// CA, stay zero); used for the first Tentative1 ingest where velocity is
// derived by finite difference of consecutive Cartesian positions.
func (f *Filter) InitializeWithVelocity(pos, vel [3]float64) {
	sf := mat.NewVecDense(f.dim, nil)
	sf.SetVec(0, pos[0])
	sf.SetVec(1, pos[1])
	sf.SetVec(2, pos[2])
	sf.SetVec(3, vel[0])
	sf.SetVec(4, vel[1])
	sf.SetVec(5, vel[2])
	f.State.Sf = sf
	f.State.Sp = mat.VecDenseCopyOf(sf)
	f.State.Pf = identity(f.dim)
	f.State.Pp = identity(f.dim)
}

// transition returns Φ(dt) for the configured variant.
func (f *Filter) transition(dt float64) *mat.Dense {
	phi := identity(f.dim)
	phi.Set(0, 3, dt)
	phi.Set(1, 4, dt)
	phi.Set(2, 5, dt)
	if f.Variant == CA {
		half := dt * dt / 2
		phi.Set(0, 6, half)
		phi.Set(1, 7, half)
		phi.Set(2, 8, half)
		phi.Set(3, 6, dt)
		phi.Set(4, 7, dt)
		phi.Set(5, 8, dt)
	}
	return phi
}

// processNoise returns Q(dt), scaled by PlantNoise, matching the teacher's
// convention of deriving process noise from a single scalar knob.
func (f *Filter) processNoise(dt float64) *mat.Dense {
	q := mat.NewDense(f.dim, f.dim, nil)
	scale := f.PlantNoise * dt
	for i := 0; i < f.dim; i++ {
		q.Set(i, i, scale)
	}
	return q
}

// Predict advances the filter by dt: Sp = Φ Sf, Pp = Φ Pf Φᵀ + Q.
func (f *Filter) Predict(dt float64) {
	phi := f.transition(dt)

	sp := mat.NewVecDense(f.dim, nil)
	sp.MulVec(phi, f.State.Sf)
	f.State.Sp = sp

	var phiPf mat.Dense
	phiPf.Mul(phi, f.State.Pf)
	var pp mat.Dense
	pp.Mul(&phiPf, phi.T())
	pp.Add(&pp, f.processNoise(dt))
	f.State.Pp = &pp
}

// Update incorporates a 3-vector Cartesian measurement z using the Joseph
// form of the covariance update for numerical stability over long runs, per
// spec.md §9. It returns false (without advancing Sf/Pf) if the innovation
// covariance is singular, so callers can skip the hit-count advance per
// spec.md §7's numerical-error recovery policy.
func (f *Filter) Update(z [3]float64) bool {
	zVec := mat.NewVecDense(3, []float64{z[0], z[1], z[2]})

	var hSp mat.VecDense
	hSp.MulVec(f.H, f.State.Sp)
	innovation := mat.NewVecDense(3, nil)
	innovation.SubVec(zVec, &hSp)

	var hPp mat.Dense
	hPp.Mul(f.H, f.State.Pp)
	var s mat.Dense
	s.Mul(&hPp, f.H.T())
	s.Add(&s, f.R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		numErr := &NumericalError{TrackID: f.TrackID, Op: "update: invert innovation covariance", Err: err}
		f.logger.Log("level", "warn", "msg", "skipping update", "err", numErr)
		return false
	}

	var ppHt mat.Dense
	ppHt.Mul(f.State.Pp, f.H.T())
	var k mat.Dense
	k.Mul(&ppHt, &sInv)

	var kInnov mat.VecDense
	kInnov.MulVec(&k, innovation)
	sf := mat.NewVecDense(f.dim, nil)
	sf.AddVec(f.State.Sp, &kInnov)
	f.State.Sf = sf

	// Joseph form: Pf = (I - K H) Pp (I - K H)^T + K R K^T
	imKH := identity(f.dim)
	var kH mat.Dense
	kH.Mul(&k, f.H)
	imKH.Sub(imKH, &kH)

	var left mat.Dense
	left.Mul(imKH, f.State.Pp)
	var pf mat.Dense
	pf.Mul(&left, imKH.T())

	var kR mat.Dense
	kR.Mul(&k, f.R)
	var kRKt mat.Dense
	kRKt.Mul(&kR, k.T())

	pf.Add(&pf, &kRKt)
	f.State.Pf = &pf
	return true
}

// InnovationCovarianceCholesky returns a Cholesky factorization of
// S = H Pp Hᵀ + R computed from the filter's current predicted covariance,
// consumed by the gating and association components (spec.md §4.4–4.5) via
// gonum's stat.Mahalanobis. It returns (nil, false) if S is not positive
// definite so callers can recover per spec.md §7.
func (f *Filter) InnovationCovarianceCholesky() (*mat.Cholesky, bool) {
	var hPp mat.Dense
	hPp.Mul(f.H, f.State.Pp)
	var s mat.Dense
	s.Mul(&hPp, f.H.T())
	s.Add(&s, f.R)

	sym, ok := symmetricOf(&s)
	if !ok {
		numErr := &NumericalError{TrackID: f.TrackID, Op: "gate: factorize innovation covariance", Err: fmt.Errorf("non-square innovation covariance")}
		f.logger.Log("level", "warn", "msg", "skipping gating", "err", numErr)
		return nil, false
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		numErr := &NumericalError{TrackID: f.TrackID, Op: "gate: factorize innovation covariance", Err: fmt.Errorf("non-positive-definite Pp[0:3,0:3]")}
		f.logger.Log("level", "warn", "msg", "skipping gating", "err", numErr)
		return nil, false
	}
	return &chol, true
}

// symmetricOf reinterprets a *mat.Dense known to be numerically symmetric
// (by construction: H Pp Hᵀ + R) as a *mat.SymDense for mat.Cholesky.
func symmetricOf(d *mat.Dense) (*mat.SymDense, bool) {
	n, c := d.Dims()
	if n != c {
		return nil, false
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, d.At(i, j))
		}
	}
	return sym, true
}

// Position3 returns the leading position triple of the filtered state.
func (f *FilterState) Position3() [3]float64 {
	return [3]float64{f.Sf.AtVec(0), f.Sf.AtVec(1), f.Sf.AtVec(2)}
}

// PredictedPosition3 returns the leading position triple of the predicted
// state.
func (f *FilterState) PredictedPosition3() [3]float64 {
	return [3]float64{f.Sp.AtVec(0), f.Sp.AtVec(1), f.Sp.AtVec(2)}
}

// Clone deep-copies a FilterState so it can be appended to a Track's
// snapshot history without aliasing the live filter's matrices.
func (f FilterState) Clone() FilterState {
	return FilterState{
		Sf: mat.VecDenseCopyOf(f.Sf),
		Sp: mat.VecDenseCopyOf(f.Sp),
		Pf: mat.DenseCopyOf(f.Pf),
		Pp: mat.DenseCopyOf(f.Pp),
	}
}

// LegacySharedFilter is the deprecated shared-singleton estimator mode the
// original source exhibited: one estimator mutated in place across every
// track's ingest. Per spec.md §9 this is "almost certainly a bug" and is
// kept only so a regression test can document why per-track Filter state
// (the default in Manager) was adopted instead.
//
// Unlike the production Filter, which hand-rolls Predict/Update on
// gonum/mat so it can apply the Joseph-form covariance correction
// (spec.md §9), LegacySharedFilter is built directly on
// github.com/ChristopherRabotin/gokalman's Vanilla estimator, the same
// library the teacher's own estimate.go and cmd/od tooling build their
// Kalman filters on (github.com/ChristopherRabotin/gokalman.NewVanilla,
// gokalman.NewNoiseless). gokalman.Vanilla exposes no seam for a per-step
// varying process noise matrix or a Joseph-form update, which is exactly
// why production tracks don't use it -- but it reproduces the original's
// mutate-one-estimator-in-place behavior faithfully, which is all this
// compatibility shim needs.
type LegacySharedFilter struct {
	*Filter
	kf *gokalman.Vanilla
}

// NewLegacySharedFilter constructs the shared-singleton estimator, built on
// gokalman.Vanilla, that every track's ingest will mutate in place.
func NewLegacySharedFilter(variant FilterVariant, plantNoise float64) (*LegacySharedFilter, error) {
	f := NewFilter(variant, plantNoise)
	dim := f.dim

	q := legacymat.NewSymDense(dim, nil)
	r := legacymat.NewSymDense(3, nil)
	for i := 0; i < 3; i++ {
		r.SetSym(i, i, 1)
	}
	noise := gokalman.NewNoiseless(q, r)

	x0 := legacymat.NewVector(dim, nil)
	p0 := legacymat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		p0.SetSym(i, i, 1)
	}
	gamma := legacymat.NewDense(dim, 1, nil)

	kf, _, err := gokalman.NewVanilla(x0, p0, toLegacyDense(f.transition(0)), gamma, toLegacyDense(f.H), noise)
	if err != nil {
		return nil, fmt.Errorf("constructing legacy shared filter: %w", err)
	}
	return &LegacySharedFilter{Filter: f, kf: kf}, nil
}

// UpdateLegacy advances the single shared gokalman.Vanilla estimator by dt
// and folds in measurement z. This is the bug spec.md §9 documents: every
// track's ingest mutates the same estimator, so interleaved tracks corrupt
// each other's state. Kept only for the regression test in kalman_test.go.
func (l *LegacySharedFilter) UpdateLegacy(dt float64, z [3]float64) (FilterState, error) {
	l.kf.SetStateTransition(toLegacyDense(l.transition(dt)))
	zVec := legacymat.NewVector(3, []float64{z[0], z[1], z[2]})
	est, err := l.kf.Update(zVec, legacymat.NewVector(1, nil))
	if err != nil {
		return FilterState{}, fmt.Errorf("legacy shared filter update: %w", err)
	}
	sf := fromLegacyVector(est.State())
	pf := fromLegacyMatrix(est.Covariance())
	return FilterState{Sf: sf, Sp: mat.VecDenseCopyOf(sf), Pf: pf, Pp: mat.DenseCopyOf(pf)}, nil
}

// toLegacyDense copies a modern gonum mat.Matrix into the teacher's legacy
// github.com/gonum/matrix/mat64 representation, the boundary gokalman's API
// requires.
func toLegacyDense(m mat.Matrix) *legacymat.Dense {
	r, c := m.Dims()
	d := legacymat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, m.At(i, j))
		}
	}
	return d
}

// fromLegacyMatrix copies a legacy mat64.Matrix (gokalman.Estimate's
// Covariance()) back into modern gonum mat.
func fromLegacyMatrix(m legacymat.Matrix) *mat.Dense {
	r, c := m.Dims()
	d := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d.Set(i, j, m.At(i, j))
		}
	}
	return d
}

// fromLegacyVector copies a legacy mat64 column vector (gokalman.Estimate's
// State()) back into a modern gonum mat.VecDense.
func fromLegacyVector(m legacymat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v
}

func (l LegacySharedFilter) String() string {
	return fmt.Sprintf("legacy shared %s filter (plant noise=%.2f)", l.Variant, l.PlantNoise)
}
