package descent

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/nlpsolver/internal/optimization"
	"github.com/copyleftdev/nlpsolver/internal/optimization/vecutil"
)

// curvatureTolerance bounds pᵀq relative to ‖p‖‖q‖ below which the update is
// skipped.
const curvatureTolerance = 1e-12

// BFGS implements the Broyden–Fletcher–Goldfarb–Shanno quasi-Newton method.
// It keeps a dense approximation H of the inverse Hessian of the adapted
// objective, starting from the identity, and updates it with the rank-two
// formula
//
//	H ← H + (1/ρ + qᵀHq/ρ²)·ppᵀ − (1/ρ)(p(Hq)ᵀ + (Hq)pᵀ),   ρ = pᵀq
//
// where q is the change in gradient and p = α·d the previous step. H is never
// reset by barrier or multiplier updates. When ρ is not safely positive the
// update is skipped; when an update would leave H indefinite, H is reset to
// the identity.
type BFGS struct {
	// Tolerance on |f_k - f_{k-1}|. Zero means BFGSTolerance.
	Tolerance float64

	dim     int
	invHess *mat.SymDense
	grad    mat.VecDense // Gradient the current direction was computed from.
	dir     mat.VecDense // Current direction.
	p       mat.VecDense
	q       mat.VecDense
	hq      mat.VecDense

	first bool

	updates int
	skips   int
	resets  int

	logger *zap.Logger
}

// NewBFGS returns a BFGS optimizer logging to logger. A nil logger disables
// logging.
func NewBFGS(logger *zap.Logger) *BFGS {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BFGS{
		logger: logger.Named("bfgs"),
	}
}

// Init implements Optimizer. It resets H to the identity and precomputes the
// first direction -H·g = -g.
func (b *BFGS) Init(state *optimization.State) error {
	n := len(state.Gradient)
	if n == 0 {
		return optimization.NewError("gradient must not be empty").
			WithComponent("descent").WithOperation("BFGS.Init")
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	b.dim = n
	b.invHess = identity(n)
	b.grad, b.dir = mat.VecDense{}, mat.VecDense{}
	b.p, b.q, b.hq = mat.VecDense{}, mat.VecDense{}, mat.VecDense{}
	b.grad.CloneFromVec(mat.NewVecDense(n, state.Gradient))
	b.dir.ScaleVec(-1, &b.grad)
	b.first = true
	b.updates, b.skips, b.resets = 0, 0, 0

	b.logger.Debug("Initialized inverse Hessian", zap.Int("dim", n))
	return nil
}

// Direction implements Optimizer.
func (b *BFGS) Direction(state *optimization.State) ([]float64, error) {
	const op = "BFGS.Direction"

	if b.invHess == nil {
		return nil, optimization.NewError("Init has not been called").
			WithComponent("descent").WithOperation(op)
	}
	if len(state.Gradient) != b.dim {
		err := fmt.Errorf("gradient has length %d, expected %d: %w", len(state.Gradient), b.dim, vecutil.ErrIncompatibleLengths)
		return nil, optimization.WrapOp(err, "descent", op)
	}

	if b.first {
		b.first = false
		return b.direction(), nil
	}

	g := mat.NewVecDense(b.dim, state.Gradient)
	b.q.SubVec(g, &b.grad)
	b.p.ScaleVec(state.StepScale, &b.dir)
	b.update(state.Iteration)

	b.grad.CopyVec(g)
	b.dir.MulVec(b.invHess, &b.grad)
	b.dir.ScaleVec(-1, &b.dir)
	return b.direction(), nil
}

func (b *BFGS) update(iteration int) {
	rho := mat.Dot(&b.p, &b.q)
	if !(rho > curvatureTolerance*mat.Norm(&b.p, 2)*mat.Norm(&b.q, 2)) {
		b.skips++
		b.logger.Debug("Skipped inverse Hessian update",
			zap.Int("iteration", iteration),
			zap.Float64("curvature", rho),
		)
		return
	}

	b.hq.MulVec(b.invHess, &b.q)
	qHq := mat.Dot(&b.q, &b.hq)

	next := mat.NewSymDense(b.dim, nil)
	next.SymRankOne(b.invHess, 1/rho+qHq/(rho*rho), &b.p)
	next.RankTwo(next, -1/rho, &b.p, &b.hq)

	var chol mat.Cholesky
	if ok := chol.Factorize(next); !ok {
		b.resets++
		b.invHess = identity(b.dim)
		b.logger.Debug("Reset indefinite inverse Hessian to identity",
			zap.Int("iteration", iteration),
			zap.Float64("curvature", rho),
		)
		return
	}

	b.invHess = next
	b.updates++
}

func (b *BFGS) direction() []float64 {
	out := make([]float64, b.dim)
	copy(out, b.dir.RawVector().Data)
	return out
}

// Done implements Optimizer.
func (b *BFGS) Done(state *optimization.State) bool {
	return successiveValuesConverged(state, tolerance(b.Tolerance, BFGSTolerance))
}

// InverseHessian returns a copy of the current approximation.
func (b *BFGS) InverseHessian() *mat.SymDense {
	if b.invHess == nil {
		return nil
	}
	return mat.NewSymDense(b.dim, append([]float64(nil), b.invHess.RawSymmetric().Data...))
}

// Updates returns how many rank-two updates were applied.
func (b *BFGS) Updates() int { return b.updates }

// Skips returns how many updates were skipped for lack of curvature.
func (b *BFGS) Skips() int { return b.skips }

// Resets returns how many times H was reset to the identity.
func (b *BFGS) Resets() int { return b.resets }

func identity(n int) *mat.SymDense {
	h := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		h.SetSym(i, i, 1)
	}
	return h
}
