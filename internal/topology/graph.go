// Package topology owns the static track graph: a flat, immutable array of
// typed nodes built once at startup (spec.md §3/§9). Every edge reference and
// every node's reverse reference is an index into that array, never a
// pointer, so the whole graph is trivially shareable read-only across every
// goroutine in the system without synchronization.
package topology

import "fmt"

// NodeType enumerates the five physical node kinds (spec.md §3).
type NodeType int

const (
	NodeNone NodeType = iota
	NodeSensor
	NodeBranch
	NodeMerge
	NodeEnter
	NodeExit
)

func (t NodeType) String() string {
	switch t {
	case NodeSensor:
		return "sensor"
	case NodeBranch:
		return "branch"
	case NodeMerge:
		return "merge"
	case NodeEnter:
		return "enter"
	case NodeExit:
		return "exit"
	default:
		return "none"
	}
}

// Direction selects a branch node's outgoing edge. Non-branch nodes only
// ever use edge index 0 (Ahead).
type Direction int

const (
	DirAhead    Direction = 0
	DirStraight Direction = 0
	DirCurved   Direction = 1
)

func (d Direction) String() string {
	if d == DirCurved {
		return "curved"
	}
	return "straight"
}

// ResistanceScale is the fixed-point scale for edge resistance coefficients
// (spec.md §3): 1000 == 1.0.
const ResistanceScale = 1000

// Edge is one outgoing edge of a node.
type Edge struct {
	Dest       int32 // node index; -1 if absent
	DistanceMM int32
	Resistance int32 // fixed-point, scale ResistanceScale
	Reverse    int32 // not set by the builder; Validate finds reverse edges by searching the reverse node's edges
}

func (e Edge) valid() bool { return e.Dest >= 0 }

// Node is one physical location facing one direction.
type Node struct {
	Name    string
	Type    NodeType
	ID      int32 // stable numeric id (e.g. switch id for branch nodes)
	Reverse int32 // index of the node representing the same location, opposite direction
	Edges   [2]Edge
}

// Graph is the immutable, flat track graph. Never mutated after Build.
type Graph struct {
	Nodes []Node
	byName map[string]int32
}

// Index returns the node index for a name, or -1 if unknown.
func (g *Graph) Index(name string) int32 {
	if i, ok := g.byName[name]; ok {
		return i
	}
	return -1
}

// At returns the Node at index i. Panics on an out-of-range index: callers
// always obtain indices from the graph itself (spec.md §7's "corrupted path
// linked list" class of defensive check belongs at the path layer, not here).
func (g *Graph) At(i int32) *Node { return &g.Nodes[i] }

func (g *Graph) MustIndex(name string) int32 {
	i := g.Index(name)
	if i < 0 {
		panic(fmt.Sprintf("topology: unknown node %q", name))
	}
	return i
}

// EdgeDistance returns the edge's millimetre distance from node `from` in
// direction dir, and whether that edge exists.
func (g *Graph) EdgeDistance(from int32, dir Direction) (int32, bool) {
	e := g.Nodes[from].Edges[dir]
	if !e.valid() {
		return 0, false
	}
	return e.DistanceMM, true
}

// builder accumulates a graph before indices are frozen.
type builder struct {
	nodes  []Node
	byName map[string]int32
}

func newBuilder() *builder {
	return &builder{byName: map[string]int32{}}
}

func (b *builder) add(name string, typ NodeType, id int32) int32 {
	idx := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Name: name, Type: typ, ID: id, Edges: [2]Edge{{Dest: -1}, {Dest: -1}}})
	b.byName[name] = idx
	return idx
}

func (b *builder) setReverse(a, bName string) {
	ai, bi := b.byName[a], b.byName[bName]
	b.nodes[ai].Reverse = bi
	b.nodes[bi].Reverse = ai
}

func (b *builder) edge(from string, dir Direction, to string, distMM int32, resistance int32) {
	fi, ti := b.byName[from], b.byName[to]
	if resistance == 0 {
		resistance = ResistanceScale
	}
	b.nodes[fi].Edges[dir] = Edge{Dest: ti, DistanceMM: distMM, Resistance: resistance}
}

func (b *builder) build() *Graph {
	return &Graph{Nodes: b.nodes, byName: b.byName}
}

// Validate checks the structural invariant from spec.md §3: for every edge
// e: u->v there exists e.reverse: v.reverse->u.reverse with the same
// distance. Intended to run once at startup (and from tests); returns a
// descriptive error naming the first offending edge, since a violated
// invariant here means the hardcoded layout itself is wrong.
func (g *Graph) Validate() error {
	for ui := range g.Nodes {
		u := &g.Nodes[ui]
		maxDir := DirAhead
		if u.Type == NodeBranch || u.Type == NodeMerge {
			maxDir = DirCurved
		}
		for dir := DirAhead; dir <= maxDir; dir++ {
			e := u.Edges[dir]
			if !e.valid() {
				continue
			}
			v := &g.Nodes[e.Dest]
			uRev := &g.Nodes[u.Reverse]
			vRev := &g.Nodes[v.Reverse]
			found := false
			for rd := DirAhead; rd <= DirCurved; rd++ {
				re := vRev.Edges[rd]
				if re.valid() && re.Dest == u.Reverse {
					if re.DistanceMM != e.DistanceMM {
						return fmt.Errorf("topology: edge %s->%s dist %d but reverse %s->%s dist %d",
							u.Name, v.Name, e.DistanceMM, vRev.Name, uRev.Name, re.DistanceMM)
					}
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("topology: edge %s->%s (dist %d) has no matching reverse edge %s->%s",
					u.Name, v.Name, e.DistanceMM, vRev.Name, uRev.Name)
			}
		}
	}
	return nil
}
