package track

import "gonum.org/v1/gonum/mat"

// GatedEdge is one accepted (track, report) pair in the bipartite gating
// graph, per spec.md §4.4.
type GatedEdge struct {
	TrackIdx  int
	ReportIdx int
	Distance  float64
}

// Cluster is a connected component of the gated bipartite graph: a set of
// track indices and a set of report indices between which some gated edge
// path exists. Shape grounded on the small typed cluster result used by
// banshee-data-velocity.report's l4perception clustering package, though
// the connectivity algorithm itself is our own (union-find over a gate
// graph, not density-based clustering).
type Cluster struct {
	Tracks  []int
	Reports []int
}

// BuildGatedEdges computes the gated bipartite graph between live track
// predicted positions and a group's Cartesian reports: an edge is emitted
// iff the Mahalanobis distance is strictly below threshold.
func BuildGatedEdges(trackPositions [][3]float64, reports [][3]float64, chol *mat.Cholesky, threshold float64) []GatedEdge {
	var edges []GatedEdge
	for i, tp := range trackPositions {
		for j, rp := range reports {
			d := Mahalanobis(tp, rp, chol)
			if d < threshold {
				edges = append(edges, GatedEdge{TrackIdx: i, ReportIdx: j, Distance: d})
			}
		}
	}
	return edges
}

// FormClusters groups gated edges into connected components, in ascending
// discovery order (the order in which a track or report index is first
// seen while scanning edges left to right), per spec.md §4.4. An empty
// edge set yields zero clusters.
func FormClusters(numTracks, numReports int, edges []GatedEdge) []Cluster {
	if len(edges) == 0 {
		return nil
	}

	trackParent := make([]int, numTracks)
	for i := range trackParent {
		trackParent[i] = i
	}
	reportParent := make([]int, numReports)
	for i := range reportParent {
		reportParent[i] = i
	}

	// Union tracks and reports into one combined node space:
	// node id i < numTracks is a track, numTracks+j is report j.
	n := numTracks + numReports
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	touchedTracks := make(map[int]bool)
	touchedReports := make(map[int]bool)
	var order []int // discovery order of root-bearing nodes, for deterministic output

	for _, e := range edges {
		tNode := e.TrackIdx
		rNode := numTracks + e.ReportIdx
		if !touchedTracks[e.TrackIdx] {
			touchedTracks[e.TrackIdx] = true
			order = append(order, tNode)
		}
		if !touchedReports[e.ReportIdx] {
			touchedReports[e.ReportIdx] = true
			order = append(order, rNode)
		}
		union(tNode, rNode)
	}

	clusterByRoot := make(map[int]*Cluster)
	var rootOrder []int
	for _, node := range order {
		root := find(node)
		c, ok := clusterByRoot[root]
		if !ok {
			c = &Cluster{}
			clusterByRoot[root] = c
			rootOrder = append(rootOrder, root)
		}
		if node < numTracks {
			c.Tracks = append(c.Tracks, node)
		} else {
			c.Reports = append(c.Reports, node-numTracks)
		}
	}

	clusters := make([]Cluster, 0, len(rootOrder))
	for _, root := range rootOrder {
		clusters = append(clusters, *clusterByRoot[root])
	}
	return clusters
}
