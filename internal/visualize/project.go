package visualize

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// Distance metrics for the neighbor graph.
const (
	MetricCosine    = "cosine"
	MetricEuclidean = "euclidean"
)

const (
	negativeSampleRate = 5
	smoothIterations   = 64
	smoothTolerance    = 1e-5
	minKDistScale      = 1e-3
	gradClip           = 4.0
	initSpread         = 10.0
)

// Project reduces rows of data to three dimensions. The layout starts from
// the top principal components and is refined by stochastic optimization of
// a fuzzy k-nearest-neighbor graph. Results are deterministic for a seed.
func Project(ctx context.Context, data *mat.Dense, opts Options) (*mat.Dense, error) {
	opts = opts.withDefaults()
	n, _ := data.Dims()
	if n == 0 {
		return nil, ErrEmptyStore
	}
	if opts.Metric != MetricCosine && opts.Metric != MetricEuclidean {
		return nil, fmt.Errorf("unsupported metric %q", opts.Metric)
	}
	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Seed)))

	embedding := pcaInit(data, rng)
	if n < 3 {
		return embedding, nil
	}
	k := min(opts.Neighbors, n-1)

	dist := pairwiseDistances(data, opts.Metric)
	graph := fuzzyGraph(dist, k)
	a, b := fitAB(opts.MinDist, 1.0)
	if err := optimizeLayout(ctx, embedding, graph, a, b, opts.Epochs, rng); err != nil {
		return nil, err
	}
	return embedding, nil
}

// pcaInit projects onto the first three principal components and scales
// the result so its largest coordinate is initSpread.
func pcaInit(data *mat.Dense, rng *rand.Rand) *mat.Dense {
	n, d := data.Dims()
	out := mat.NewDense(n, 3, nil)
	if n < 2 {
		return out
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); ok {
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		_, c := vecs.Dims()
		k := min(3, c)
		centered := mat.DenseCopyOf(data)
		for j := 0; j < d; j++ {
			mean := stat.Mean(mat.Col(nil, j, centered), nil)
			for i := 0; i < n; i++ {
				centered.Set(i, j, centered.At(i, j)-mean)
			}
		}
		var proj mat.Dense
		proj.Mul(centered, vecs.Slice(0, d, 0, k))
		for i := 0; i < n; i++ {
			for j := 0; j < k; j++ {
				out.Set(i, j, proj.At(i, j))
			}
		}
	}

	maxAbs := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			maxAbs = math.Max(maxAbs, math.Abs(out.At(i, j)))
		}
	}
	scale := 1.0
	if maxAbs > 0 {
		scale = initSpread / maxAbs
	}
	for i := 0; i < n; i++ {
		for j := 0; j < 3; j++ {
			out.Set(i, j, out.At(i, j)*scale+rng.NormFloat64()*1e-4)
		}
	}
	return out
}

// pairwiseDistances returns the full n x n distance matrix.
func pairwiseDistances(data *mat.Dense, metric string) *mat.SymDense {
	n, _ := data.Dims()
	x := mat.DenseCopyOf(data)
	norms := make([]float64, n)
	for i := 0; i < n; i++ {
		norms[i] = mat.Norm(x.RowView(i), 2)
	}
	if metric == MetricCosine {
		for i := 0; i < n; i++ {
			if norms[i] == 0 {
				continue
			}
			row := x.RawRowView(i)
			for j := range row {
				row[j] /= norms[i]
			}
		}
	}

	var gram mat.SymDense
	gram.SymOuterK(1, x)

	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			if metric == MetricCosine {
				if norms[i] == 0 || norms[j] == 0 {
					d = 1
				} else {
					d = math.Max(0, 1-gram.At(i, j))
				}
			} else {
				d = math.Sqrt(math.Max(0, norms[i]*norms[i]+norms[j]*norms[j]-2*gram.At(i, j)))
			}
			dist.SetSym(i, j, d)
		}
	}
	return dist
}

type edge struct {
	head, tail int
	weight     float64
}

// fuzzyGraph builds the symmetrized fuzzy simplicial set over each point's
// k nearest neighbors. Both directions of every edge are returned.
func fuzzyGraph(dist *mat.SymDense, k int) []edge {
	n, _ := dist.Dims()
	target := math.Log2(float64(k))

	var meanAll float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			meanAll += dist.At(i, j)
		}
	}
	if n > 1 {
		meanAll /= float64(n*(n-1)) / 2
	}

	weights := make(map[[2]int]float64, n*k)
	idx := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		idx = idx[:0]
		for j := 0; j < n; j++ {
			if j != i {
				idx = append(idx, j)
			}
		}
		sort.SliceStable(idx, func(a, b int) bool { return dist.At(i, idx[a]) < dist.At(i, idx[b]) })
		nbrs := idx[:k]

		rho := 0.0
		for _, j := range nbrs {
			if d := dist.At(i, j); d > 0 {
				rho = d
				break
			}
		}
		sigma := smoothSigma(dist, i, nbrs, rho, target)
		var meanI float64
		for _, j := range nbrs {
			meanI += dist.At(i, j)
		}
		meanI /= float64(len(nbrs))
		floor := minKDistScale * meanI
		if rho == 0 {
			floor = minKDistScale * meanAll
		}
		sigma = math.Max(sigma, floor)

		for _, j := range nbrs {
			d := dist.At(i, j) - rho
			w := 1.0
			if d > 0 && sigma > 0 {
				w = math.Exp(-d / sigma)
			}
			weights[[2]int{i, j}] = w
		}
	}

	var edges []edge
	for key, w := range weights {
		i, j := key[0], key[1]
		if i > j {
			if _, ok := weights[[2]int{j, i}]; ok {
				continue
			}
		}
		wt := weights[[2]int{j, i}]
		sym := w + wt - w*wt
		edges = append(edges, edge{i, j, sym}, edge{j, i, sym})
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].head != edges[b].head {
			return edges[a].head < edges[b].head
		}
		return edges[a].tail < edges[b].tail
	})
	return edges
}

// smoothSigma binary-searches the bandwidth whose membership sum equals
// target.
func smoothSigma(dist *mat.SymDense, i int, nbrs []int, rho, target float64) float64 {
	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for iter := 0; iter < smoothIterations; iter++ {
		var sum float64
		for _, j := range nbrs {
			d := dist.At(i, j) - rho
			if d > 0 {
				sum += math.Exp(-d / mid)
			} else {
				sum++
			}
		}
		if math.Abs(sum-target) < smoothTolerance {
			break
		}
		if sum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}
	return mid
}

// fitAB fits the low-dimensional similarity curve 1/(1+a*d^(2b)) to the
// offset exponential implied by minDist and spread.
func fitAB(minDist, spread float64) (float64, float64) {
	const samples = 300
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	for i := range xs {
		x := 3 * spread * float64(i) / float64(samples-1)
		xs[i] = x
		if x < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(x - minDist) / spread)
		}
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			a, b := p[0], p[1]
			if a <= 0 || b <= 0 {
				return math.Inf(1)
			}
			var sse float64
			for i, x := range xs {
				r := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
				sse += r * r
			}
			return sse
		},
	}
	res, err := optimize.Minimize(problem, []float64{1, 1}, nil, &optimize.NelderMead{})
	if err != nil || res == nil || res.X[0] <= 0 || res.X[1] <= 0 {
		return 1.577, 0.895
	}
	return res.X[0], res.X[1]
}

// optimizeLayout runs the attractive/repulsive edge sampling schedule.
func optimizeLayout(ctx context.Context, emb *mat.Dense, edges []edge, a, b float64, epochs int, rng *rand.Rand) error {
	if len(edges) == 0 {
		return nil
	}
	n, dim := emb.Dims()
	maxW := 0.0
	for _, e := range edges {
		maxW = math.Max(maxW, e.weight)
	}

	kept := edges[:0:0]
	for _, e := range edges {
		if e.weight >= maxW/float64(epochs) {
			kept = append(kept, e)
		}
	}
	perSample := make([]float64, len(kept))
	nextSample := make([]float64, len(kept))
	perNeg := make([]float64, len(kept))
	nextNeg := make([]float64, len(kept))
	for i, e := range kept {
		samples := float64(epochs) * e.weight / maxW
		perSample[i] = float64(epochs) / samples
		nextSample[i] = perSample[i]
		perNeg[i] = perSample[i] / negativeSampleRate
		nextNeg[i] = perNeg[i]
	}

	clip := func(v float64) float64 { return math.Max(-gradClip, math.Min(gradClip, v)) }
	cur := make([]float64, dim)
	other := make([]float64, dim)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := 1 - float64(epoch)/float64(epochs)
		ep := float64(epoch)
		for i, e := range kept {
			if nextSample[i] > ep {
				continue
			}
			mat.Row(cur, e.head, emb)
			mat.Row(other, e.tail, emb)
			d2 := sqDist(cur, other)
			if d2 > 0 {
				coeff := -2 * a * b * math.Pow(d2, b-1) / (a*math.Pow(d2, b) + 1)
				for d := 0; d < dim; d++ {
					g := clip(coeff*(cur[d]-other[d])) * alpha
					cur[d] += g
					other[d] -= g
				}
				emb.SetRow(e.head, cur)
				emb.SetRow(e.tail, other)
			}
			nextSample[i] += perSample[i]

			negs := int((ep - nextNeg[i]) / perNeg[i])
			for p := 0; p < negs; p++ {
				k := rng.IntN(n)
				if k == e.head {
					continue
				}
				mat.Row(other, k, emb)
				d2 := sqDist(cur, other)
				for d := 0; d < dim; d++ {
					g := gradClip
					if d2 > 0 {
						coeff := 2 * b / ((0.001 + d2) * (a*math.Pow(d2, b) + 1))
						g = clip(coeff * (cur[d] - other[d]))
					}
					cur[d] += g * alpha
				}
			}
			if negs > 0 {
				emb.SetRow(e.head, cur)
				nextNeg[i] += float64(negs) * perNeg[i]
			}
		}
	}
	return nil
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
