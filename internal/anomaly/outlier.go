package anomaly

import (
	"math"
	"math/rand"
	"sort"

	"bank-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// OutlierDetector is a secondary, volume based anomaly signal
type OutlierDetector interface {
	IsOutlier(amount decimal.Decimal, vendor string) bool
}

// NoopDetector never reports an outlier
type NoopDetector struct{}

func (NoopDetector) IsOutlier(decimal.Decimal, string) bool { return false }

const eulerGamma = 0.5772156649015329

// IsolationForest holds one forest per vendor trained on absolute amounts.
// Vendors with fewer than MinTransactions records have no forest and are
// never reported.
type IsolationForest struct {
	forests map[string]*forest
}

type forest struct {
	trees      []*isolationNode
	sampleSize int
}

type isolationNode struct {
	split       float64
	left, right *isolationNode
	size        int
}

func (n *isolationNode) leaf() bool {
	return n.left == nil
}

// TrainIsolationForest fits a forest for every vendor with enough history.
// Training is deterministic for a given seed.
func TrainIsolationForest(records []models.InternalRecord, config IsolationForestConfig) *IsolationForest {
	amounts := make(map[string][]float64)
	for _, rec := range records {
		if rec.Vendor == "" {
			continue
		}
		amounts[rec.Vendor] = append(amounts[rec.Vendor], rec.Amount.Abs().InexactFloat64())
	}

	vendors := make([]string, 0, len(amounts))
	for v, values := range amounts {
		if len(values) >= config.MinTransactions {
			vendors = append(vendors, v)
		}
	}
	sort.Strings(vendors)

	f := &IsolationForest{forests: make(map[string]*forest, len(vendors))}
	for _, vendor := range vendors {
		f.forests[vendor] = fitForest(amounts[vendor], config)
	}
	return f
}

func fitForest(values []float64, config IsolationForestConfig) *forest {
	rng := rand.New(rand.NewSource(config.Seed))

	sampleSize := config.MaxSamples
	if sampleSize > len(values) {
		sampleSize = len(values)
	}
	heightLimit := int(math.Ceil(math.Log2(float64(sampleSize))))

	fr := &forest{sampleSize: sampleSize, trees: make([]*isolationNode, 0, config.Trees)}
	for i := 0; i < config.Trees; i++ {
		sample := make([]float64, sampleSize)
		for j, idx := range rng.Perm(len(values))[:sampleSize] {
			sample[j] = values[idx]
		}
		fr.trees = append(fr.trees, growTree(sample, 0, heightLimit, rng))
	}
	return fr
}

func growTree(values []float64, depth, limit int, rng *rand.Rand) *isolationNode {
	if depth >= limit || len(values) <= 1 {
		return &isolationNode{size: len(values)}
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return &isolationNode{size: len(values)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right []float64
	for _, v := range values {
		if v < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &isolationNode{
		split: split,
		left:  growTree(left, depth+1, limit, rng),
		right: growTree(right, depth+1, limit, rng),
		size:  len(values),
	}
}

// averagePathLength is the expected path length of an unsuccessful search in a binary search tree of n nodes
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}

func pathLength(x float64, node *isolationNode, depth int) float64 {
	for !node.leaf() {
		if x < node.split {
			node = node.left
		} else {
			node = node.right
		}
		depth++
	}
	return float64(depth) + averagePathLength(node.size)
}

// Score returns the anomaly score in (0, 1] of amount for vendor, and false
// when the vendor has no forest.
func (f *IsolationForest) Score(amount decimal.Decimal, vendor string) (float64, bool) {
	fr, ok := f.forests[vendor]
	if !ok {
		return 0, false
	}

	x := amount.Abs().InexactFloat64()
	total := 0.0
	for _, tree := range fr.trees {
		total += pathLength(x, tree, 0)
	}
	mean := total / float64(len(fr.trees))

	norm := averagePathLength(fr.sampleSize)
	if norm == 0 {
		return 0, false
	}
	return math.Pow(2, -mean/norm), true
}

// IsOutlier reports an amount whose anomaly score is above 0.5
func (f *IsolationForest) IsOutlier(amount decimal.Decimal, vendor string) bool {
	score, ok := f.Score(amount, vendor)
	return ok && score > 0.5
}

// Vendors returns the vendors that have a trained forest
func (f *IsolationForest) Vendors() []string {
	out := make([]string, 0, len(f.forests))
	for v := range f.forests {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
