package track

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Hypothesis is one (track, report) pairing considered by JPDA within a
// cluster, with its normalized probability.
type Hypothesis struct {
	TrackIdx    int
	ReportIdx   int
	Weight      float64
	Probability float64
}

// JPDAResult bundles the clusters, the arg-max pick per cluster, and every
// hypothesis considered, per spec.md §4.5.
type JPDAResult struct {
	Clusters     []Cluster
	BestPerCluster []AssociationHit
	Hypotheses   [][]Hypothesis
}

// AssociationHit is a typed variant over the association outcome kinds
// named in spec.md §9: SingleHit, JPDAHit, MunkresHit, Birth.
type AssociationHit struct {
	Kind      AssociationKind
	TrackIdx  int
	ReportIdx int
}

// AssociationKind tags an AssociationHit's origin.
type AssociationKind uint8

const (
	// KindSingle is a correlation-check hit on a single-measurement group.
	KindSingle AssociationKind = iota
	// KindJPDA is a JPDA arg-max hit.
	KindJPDA
	// KindMunkres is a Hungarian-assignment hit.
	KindMunkres
	// KindBirth is an unassociated report becoming a new track.
	KindBirth
)

// PerformJPDA runs JPDA over one group's clusters: within each cluster it
// enumerates all (track, report) pairs, weights them by exp(-1/2 d²),
// normalizes, and selects the arg-max pair, breaking ties by lowest track
// index then lowest report index, per spec.md §4.5.
func PerformJPDA(clusters []Cluster, trackPositions, reports [][3]float64, chol *mat.Cholesky) JPDAResult {
	result := JPDAResult{Clusters: clusters}

	for _, cluster := range clusters {
		var hyps []Hypothesis
		total := 0.0
		for _, ti := range cluster.Tracks {
			for _, ri := range cluster.Reports {
				d2 := Mahalanobis(trackPositions[ti], reports[ri], chol)
				w := math.Exp(-0.5 * d2)
				hyps = append(hyps, Hypothesis{TrackIdx: ti, ReportIdx: ri, Weight: w})
				total += w
			}
		}
		if total == 0 {
			total = 1 // degenerate cluster (shouldn't occur with nonempty Tracks/Reports)
		}
		bestIdx := -1
		for i := range hyps {
			hyps[i].Probability = hyps[i].Weight / total
			if bestIdx == -1 {
				bestIdx = i
				continue
			}
			best := hyps[bestIdx]
			cand := hyps[i]
			if cand.Probability > best.Probability ||
				(cand.Probability == best.Probability && tieBreaksBefore(cand, best)) {
				bestIdx = i
			}
		}
		result.Hypotheses = append(result.Hypotheses, hyps)
		if bestIdx >= 0 {
			result.BestPerCluster = append(result.BestPerCluster, AssociationHit{
				Kind:      KindJPDA,
				TrackIdx:  hyps[bestIdx].TrackIdx,
				ReportIdx: hyps[bestIdx].ReportIdx,
			})
		}
	}
	return result
}

func tieBreaksBefore(cand, best Hypothesis) bool {
	if cand.TrackIdx != best.TrackIdx {
		return cand.TrackIdx < best.TrackIdx
	}
	return cand.ReportIdx < best.ReportIdx
}

// munkresForbidden marks a cost-matrix entry as unreachable, per spec.md
// §9's rectangular-padding note: padded slots must never win even under
// floating point ties, so we use a sentinel larger than any real
// Mahalanobis distance rather than literal +Inf (which could survive
// arithmetic in unexpected ways inside the solver).
const munkresForbidden = 1e18

// HungarianAssign solves the rectangular assignment problem for an n x m
// cost matrix, returning assignment[i] = column assigned to row i, or -1 if
// row i is unassigned. Ported from the Jonker-Volgenant potentials
// implementation in banshee-data-velocity.report's internal/lidar/hungarian.go,
// adapted from float32 to float64 cost matrices (our costs are squared
// Mahalanobis distances) and from a package-level sentinel to the
// munkresForbidden constant shared with the padding logic below.
func HungarianAssign(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		result := make([]int, n)
		for i := range result {
			result[i] = -1
		}
		return result
	}

	dim := n
	if m > dim {
		dim = m
	}

	c := make([][]float64, dim)
	for i := 0; i < dim; i++ {
		c[i] = make([]float64, dim)
		for j := 0; j < dim; j++ {
			if i < n && j < m {
				c[i][j] = cost[i][j]
			} else {
				c[i][j] = munkresForbidden
			}
		}
	}

	const inf = math.MaxFloat64 / 2

	u := make([]float64, dim+1)
	v := make([]float64, dim+1)
	p := make([]int, dim+1)
	way := make([]int, dim+1)
	minv := make([]float64, dim+1)
	used := make([]bool, dim+1)

	for i := 1; i <= dim; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= dim; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1

			for j := 1; j <= dim; j++ {
				if used[j] {
					continue
				}
				cur := c[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				break
			}

			for j := 0; j <= dim; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			p[j0] = p[way[j0]]
			j0 = way[j0]
		}
	}

	rowAssign := make([]int, dim)
	for i := range rowAssign {
		rowAssign[i] = -1
	}
	for j := 1; j <= dim; j++ {
		if p[j] > 0 && p[j] <= dim {
			rowAssign[p[j]-1] = j - 1
		}
	}

	result := make([]int, n)
	for i := 0; i < n; i++ {
		col := rowAssign[i]
		if col < 0 || col >= m || cost[i][col] >= munkresForbidden {
			result[i] = -1
		} else {
			result[i] = col
		}
	}
	return result
}

// PerformMunkres builds the full track x report Mahalanobis cost matrix and
// solves it by Hungarian assignment, per spec.md §4.5. No gating is applied
// beyond the cost itself.
func PerformMunkres(trackPositions, reports [][3]float64, chol *mat.Cholesky) []AssociationHit {
	if len(trackPositions) == 0 || len(reports) == 0 {
		return nil
	}
	cost := make([][]float64, len(trackPositions))
	for i, tp := range trackPositions {
		cost[i] = make([]float64, len(reports))
		for j, rp := range reports {
			cost[i][j] = Mahalanobis(tp, rp, chol)
		}
	}
	assignment := HungarianAssign(cost)
	var hits []AssociationHit
	for row, col := range assignment {
		if col >= 0 {
			hits = append(hits, AssociationHit{Kind: KindMunkres, TrackIdx: row, ReportIdx: col})
		}
	}
	return hits
}
