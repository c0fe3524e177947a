package conductor

import (
	"container/heap"

	"trainctl-go/errcode"
	"trainctl-go/internal/topology"
)

// PathCostReversal is the fixed cost assigned to the zero-distance edge
// between a node and its reverse that FindPath may insert at the very
// start of a path (spec.md §4.6 "Path finding").
const PathCostReversal = 500

// MaxPathNodes bounds path iteration against a corrupted predecessor
// chain (spec.md §7's defensive-check invariant).
const MaxPathNodes = 100

// PathNode is one step of a found or activated path.
type PathNode struct {
	NodeIdx     int32
	SwitchDir   topology.Direction
	ReverseHere bool
}

// Path is an ordered route from one node to another.
type Path struct {
	Nodes         []PathNode
	TotalDistance int32
}

type pqItem struct {
	node int32
	cost int32
	seq  uint64
}

type pathQueue []*pqItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].seq < q[j].seq
}
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(*pqItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

type pathEdge struct {
	from        int32
	dir         topology.Direction
	reverseHere bool
}

// FindPath runs Dijkstra over the track graph from `from` to `to`, with
// node doubling for reversal: the only reversal edge ever considered is
// the zero-distance hop from `from` to its own Reverse, available only
// when allowReversal is set and `from` is not on the reversal blacklist
// (spec.md §4.6). excludedBlocks makes every node inside those blocks
// unvisitable, supporting deadlock-detour retries.
func (c *Conductor) FindPath(from, to int32, allowReversal bool, excludedBlocks []int32) (*Path, error) {
	var result *Path
	var resultErr error
	c.do(func() {
		result, resultErr = c.findPathLocked(from, to, allowReversal, excludedBlocks)
	})
	return result, resultErr
}

func (c *Conductor) blockedByExclusion(nodeIdx int32, excluded []int32) bool {
	if len(excluded) == 0 {
		return false
	}
	b := c.blockForNode(nodeIdx)
	if b == nil {
		return false
	}
	for _, ex := range excluded {
		if b.ID == ex {
			return true
		}
	}
	return false
}

func (c *Conductor) findPathLocked(from, to int32, allowReversal bool, excludedBlocks []int32) (*Path, error) {
	if from == to {
		return &Path{}, nil
	}

	dist := map[int32]int32{from: 0}
	prevEdge := map[int32]pathEdge{}
	visited := map[int32]bool{}

	pq := &pathQueue{}
	heap.Init(pq)
	var seq uint64
	push := func(node int32, cost int32) {
		heap.Push(pq, &pqItem{node: node, cost: cost, seq: seq})
		seq++
	}
	push(from, 0)

	if allowReversal && !c.reversalBlacklist.Contains(from) {
		rev := c.graph.At(from).Reverse
		if rev != from {
			if d, ok := dist[rev]; !ok || PathCostReversal < d {
				dist[rev] = PathCostReversal
				prevEdge[rev] = pathEdge{from: from, reverseHere: true}
				push(rev, PathCostReversal)
			}
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		u := item.node
		if visited[u] {
			continue
		}
		visited[u] = true
		if u == to {
			break
		}

		node := c.graph.At(u)
		maxDir := topology.DirAhead
		if node.Type == topology.NodeBranch || node.Type == topology.NodeMerge {
			maxDir = topology.DirCurved
		}
		for dir := topology.DirAhead; dir <= maxDir; dir++ {
			e := node.Edges[dir]
			if e.Dest < 0 {
				continue
			}
			v := e.Dest
			if visited[v] || c.blockedByExclusion(v, excludedBlocks) {
				continue
			}
			nd := dist[u] + e.DistanceMM
			if d, ok := dist[v]; !ok || nd < d {
				dist[v] = nd
				prevEdge[v] = pathEdge{from: u, dir: dir}
				push(v, nd)
			}
		}
	}

	if _, ok := dist[to]; !ok {
		return nil, errcode.Wrap(errcode.NoPath, "conductor.FindPath", nil)
	}

	var nodes []PathNode
	cur := to
	for i := 0; i < MaxPathNodes+1; i++ {
		edge, hasPrev := prevEdge[cur]
		if !hasPrev {
			// cur == from: the walk-back is complete, prepend the source
			// node itself (with no incoming switch/reversal info) and stop.
			nodes = append([]PathNode{{NodeIdx: cur}}, nodes...)
			break
		}
		nodes = append([]PathNode{{NodeIdx: cur, SwitchDir: edge.dir, ReverseHere: edge.reverseHere}}, nodes...)
		cur = edge.from
	}
	if len(nodes) > MaxPathNodes {
		return nil, errcode.Wrap(errcode.Unknown, "conductor.FindPath", nil)
	}

	return &Path{Nodes: nodes, TotalDistance: dist[to]}, nil
}
