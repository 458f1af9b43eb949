package modules

import (
	"errors"
	"fmt"
	"math"

	"github.com/okieraised/go-face3d-pipeline/utils"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

// MinSolverScale is the smallest raw solver scale accepted before it is inverted.
const MinSolverScale = 1e-8

// AffineProjection is the full least-squares solution of
//
//	xp = R1 . X + tx
//	yp = R2 . X + ty
//
// for reference points X of dimension D. Parameters is laid out as [R1, tx, R2, ty].
type AffineProjection struct {
	Dim        int
	Parameters []float64
	Rank       int
}

func (p *AffineProjection) R1() []float64 { return p.Parameters[0:p.Dim] }
func (p *AffineProjection) R2() []float64 { return p.Parameters[p.Dim+1 : 2*p.Dim+1] }

func (p *AffineProjection) Translation() [2]float64 {
	return [2]float64{p.Parameters[p.Dim], p.Parameters[2*p.Dim+1]}
}

// Similarity keeps the translation and the isotropic scale (mean of |R1| and |R2|) and drops
// the rotation/shear terms.
func (p *AffineProjection) Similarity() *SimilarityTransform {
	return &SimilarityTransform{
		Translation: p.Translation(),
		Scale:       (utils.L2Norm(p.R1()) + utils.L2Norm(p.R2())) / 2,
	}
}

// SimilarityTransform maps reference space onto detected pixels: p = Scale*X + Translation.
type SimilarityTransform struct {
	Translation [2]float64
	Scale       float64
}

// Valid reports whether the scale can be safely inverted.
func (s *SimilarityTransform) Valid() bool {
	return s.Scale > MinSolverScale && !math.IsInf(s.Scale, 0) &&
		!math.IsNaN(s.Translation[0]) && !math.IsNaN(s.Translation[1]) &&
		!math.IsInf(s.Translation[0], 0) && !math.IsInf(s.Translation[1], 0)
}

// SolveAffineProjection solves the 2N x 2(D+1) system mapping reference (N, D) points onto
// detected (N, 2) points in the least-squares sense. Rank-deficient systems (fewer than four
// well-spread points) get the minimum-norm solution, which is numerically arbitrary.
func SolveAffineProjection(reference, detected *tensor.Dense) (*AffineProjection, error) {
	rs, ds := reference.Shape(), detected.Shape()
	if len(rs) != 2 || len(ds) != 2 || ds[1] != 2 {
		return nil, fmt.Errorf("%w: reference %v, detected %v", ErrLandmarkShape, rs, ds)
	}
	if rs[0] != ds[0] || rs[0] == 0 {
		return nil, fmt.Errorf("%w: %d reference points vs %d detected points", ErrLandmarkShape, rs[0], ds[0])
	}

	n, d := rs[0], rs[1]
	cols := d + 1
	ref := reference.Float64s()
	det := detected.Float64s()

	a := mat.NewDense(2*n, 2*cols, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			a.Set(2*i, j, ref[i*d+j])
			a.Set(2*i+1, cols+j, ref[i*d+j])
		}
		a.Set(2*i, d, 1)
		a.Set(2*i+1, cols+d, 1)
		b.SetVec(2*i, det[2*i])
		b.SetVec(2*i+1, det[2*i+1])
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("svd factorization of landmark system failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rank := svd.Rank(rcond * float64(max(2*n, 2*cols)))
	if rank == 0 {
		return nil, &DegenerateGeometryError{Scale: 0}
	}

	var k mat.VecDense
	svd.SolveVecTo(&k, b, rank)

	params := make([]float64, 2*cols)
	copy(params, k.RawVector().Data)
	return &AffineProjection{Dim: d, Parameters: params, Rank: rank}, nil
}

// SolveSimilarity estimates the translation and scale that best map the reference landmarks
// onto the detected ones.
func SolveSimilarity(reference, detected *tensor.Dense) (*SimilarityTransform, error) {
	proj, err := SolveAffineProjection(reference, detected)
	if err != nil {
		return nil, err
	}
	return proj.Similarity(), nil
}
