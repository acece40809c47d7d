package nlls

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotConverged is reported when the iteration budget or damping cap
	// is exhausted before the step tolerance is met.
	ErrNotConverged = errors.New("nlls: not converged")
	// ErrSingularHessian is reported when the normal equations cannot be
	// factorized even with diagonal jitter.
	ErrSingularHessian = errors.New("nlls: singular hessian")
)

// Strategy selects the minimization strategy.
type Strategy int

const (
	// GaussNewton takes full Gauss-Newton steps.
	GaussNewton Strategy = iota
	// LevenbergMarquardt damps steps adaptively, accepting only those that
	// decrease the weighted cost.
	LevenbergMarquardt
)

// Problem is the residual functor the solver minimizes. Eval fills the
// residual vector and, when requested, the Jacobian. State exposes the
// parameter vector; Update applies a step in the parameter tangent space.
type Problem interface {
	Dims() (residuals, params int)
	Eval(f *mat.VecDense, jac *mat.Dense, withJacobian bool) error
	State() []float64
	SetState(x []float64)
	Update(delta []float64)
}

// Options configures a solve.
type Options struct {
	MaxIterations int
	Strategy      Strategy
	Weight        RobustWeight
	StepTolerance float64
	CostTolerance float64
}

// DefaultOptions returns the solver defaults: 100 Gauss-Newton iterations
// with unit weights.
func DefaultOptions() Options {
	return Options{
		MaxIterations: 100,
		Strategy:      GaussNewton,
		Weight:        UnitWeight(),
		StepTolerance: 1e-8,
		CostTolerance: 1e-8,
	}
}

// Summary reports the outcome of a solve.
type Summary struct {
	Iterations int
	Cost       float64
	Converged  bool
}

const (
	lmInitialLambda = 1e-3
	lmScale         = 10.0
	lmMaxLambda     = 1e9
	choleskyJitter  = 1e-9
	jitterAttempts  = 4
)

// Solve minimizes the problem in place. The problem's state holds the
// final estimate regardless of the returned error; on ErrNotConverged and
// ErrSingularHessian the caller decides whether the estimate is usable.
func Solve(p Problem, opts Options) (Summary, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	if opts.Weight == nil {
		opts.Weight = UnitWeight()
	}
	if opts.StepTolerance <= 0 {
		opts.StepTolerance = 1e-8
	}
	if opts.CostTolerance <= 0 {
		opts.CostTolerance = 1e-8
	}
	switch opts.Strategy {
	case LevenbergMarquardt:
		return solveLM(p, opts)
	default:
		return solveGN(p, opts)
	}
}

func solveGN(p Problem, opts Options) (Summary, error) {
	nr, np := p.Dims()
	f := mat.NewVecDense(nr, nil)
	jac := mat.NewDense(nr, np, nil)
	w := make([]float64, nr)
	hess := mat.NewSymDense(np, nil)
	grad := mat.NewVecDense(np, nil)
	delta := make([]float64, np)

	var sum Summary
	for it := 0; it < opts.MaxIterations; it++ {
		sum.Iterations = it + 1
		if err := p.Eval(f, jac, true); err != nil {
			return sum, err
		}
		computeWeights(w, f, opts.Weight)
		sum.Cost = weightedCost(f, w)
		normalEquations(hess, grad, jac, f, w)
		if err := solveNormal(hess, grad, 0, delta); err != nil {
			return sum, err
		}
		p.Update(delta)
		if floats.Norm(delta, 2) < opts.StepTolerance {
			sum.Converged = true
			return sum, nil
		}
	}
	return sum, ErrNotConverged
}

func solveLM(p Problem, opts Options) (Summary, error) {
	nr, np := p.Dims()
	f := mat.NewVecDense(nr, nil)
	jac := mat.NewDense(nr, np, nil)
	w := make([]float64, nr)
	hess := mat.NewSymDense(np, nil)
	grad := mat.NewVecDense(np, nil)
	delta := make([]float64, np)
	saved := make([]float64, np)

	lambda := lmInitialLambda

	var sum Summary
	if err := p.Eval(f, jac, true); err != nil {
		return sum, err
	}
	computeWeights(w, f, opts.Weight)
	cost := weightedCost(f, w)
	sum.Cost = cost

	for it := 0; it < opts.MaxIterations; it++ {
		sum.Iterations = it + 1
		normalEquations(hess, grad, jac, f, w)
		if err := solveNormal(hess, grad, lambda, delta); err != nil {
			return sum, err
		}

		copy(saved, p.State())
		p.Update(delta)
		if err := p.Eval(f, nil, false); err != nil {
			return sum, err
		}
		computeWeights(w, f, opts.Weight)
		trial := weightedCost(f, w)

		if trial < cost {
			// Accepted: relax damping and refresh the Jacobian.
			decrease := (cost - trial) / cost
			cost = trial
			sum.Cost = cost
			lambda /= lmScale
			if floats.Norm(delta, 2) < opts.StepTolerance || decrease < opts.CostTolerance {
				sum.Converged = true
				return sum, nil
			}
			if err := p.Eval(f, jac, true); err != nil {
				return sum, err
			}
			computeWeights(w, f, opts.Weight)
			continue
		}

		// Rejected: restore and stiffen damping.
		p.SetState(saved)
		lambda *= lmScale
		if lambda > lmMaxLambda {
			return sum, ErrNotConverged
		}
		if err := p.Eval(f, jac, true); err != nil {
			return sum, err
		}
		computeWeights(w, f, opts.Weight)
	}
	return sum, ErrNotConverged
}

func computeWeights(w []float64, f *mat.VecDense, weight RobustWeight) {
	for i := range w {
		w[i] = weight(f.AtVec(i))
	}
}

func weightedCost(f *mat.VecDense, w []float64) float64 {
	var cost float64
	for i := range w {
		r := f.AtVec(i)
		cost += w[i] * r * r
	}
	return 0.5 * cost
}

// normalEquations accumulates H = J^T W J and g = J^T W f in a fixed row
// order so results are bit-reproducible across runs.
func normalEquations(hess *mat.SymDense, grad *mat.VecDense, jac *mat.Dense, f *mat.VecDense, w []float64) {
	_, np := jac.Dims()
	hess.Zero()
	grad.Zero()
	for i := range w {
		wi := w[i]
		if wi == 0 {
			continue
		}
		ri := f.AtVec(i)
		for a := 0; a < np; a++ {
			ja := jac.At(i, a)
			grad.SetVec(a, grad.AtVec(a)+wi*ja*ri)
			for b := a; b < np; b++ {
				hess.SetSym(a, b, hess.At(a, b)+wi*ja*jac.At(i, b))
			}
		}
	}
}

// solveNormal solves (H + lambda*diag(H)) delta = -g by Cholesky, adding
// diagonal jitter on factorization failure.
func solveNormal(hess *mat.SymDense, grad *mat.VecDense, lambda float64, delta []float64) error {
	np := grad.Len()
	damped := mat.NewSymDense(np, nil)
	damped.CopySym(hess)
	if lambda > 0 {
		for a := 0; a < np; a++ {
			damped.SetSym(a, a, hess.At(a, a)*(1+lambda))
		}
	}

	var chol mat.Cholesky
	jitter := choleskyJitter
	ok := chol.Factorize(damped)
	for attempt := 0; !ok && attempt < jitterAttempts; attempt++ {
		for a := 0; a < np; a++ {
			damped.SetSym(a, a, damped.At(a, a)+jitter)
		}
		jitter *= 100
		ok = chol.Factorize(damped)
	}
	if !ok {
		return ErrSingularHessian
	}

	sol := mat.NewVecDense(np, nil)
	if err := chol.SolveVecTo(sol, grad); err != nil {
		return ErrSingularHessian
	}
	for a := 0; a < np; a++ {
		delta[a] = -sol.AtVec(a)
	}
	return nil
}
