package conductor

import (
	"context"

	"trainctl-go/internal/topology"
)

// ActivationStopReason explains why activation stopped reserving further
// down the path (spec.md §4.6 "Path activation").
type ActivationStopReason int

const (
	StopEndOfPath ActivationStopReason = iota
	StopBlockUnavailable
	StopMaxDistanceReached
	StopAlreadyReservedThisSession
)

// ActivationResult is what ActivatePath reserves and reports back to a
// train.
type ActivationResult struct {
	ReservedBlocks      []int32
	FurthestActivated   int32 // node index, -1 if nothing new was reserved
	NextSensor          int32 // node index of the next expected sensor, -1 if none
	NextSensorDistance  int32
	StopReason          ActivationStopReason
	BlockingTrainID     int32 // set when StopReason == StopBlockUnavailable
}

// blockBoundaryStarts returns, for a path, the index of the path node at
// which each traversed block begins (its first node), in path order.
func blockBoundaryStarts(path *Path, c *Conductor) []int {
	var starts []int
	var lastBlock int32 = -1
	for i, pn := range path.Nodes {
		b := c.blockForNode(pn.NodeIdx)
		if b == nil {
			continue
		}
		if b.ID != lastBlock {
			starts = append(starts, i)
			lastBlock = b.ID
		}
	}
	return starts
}

// ActivatePath reserves as much of path's tail as fits within
// maxDistance, working backward from the end, then traverses the whole
// path forward setting every branch switch it needs (including
// merge-reverse-branch switches inside reserved blocks so the train can
// later back out). trainID is the requesting train. currentNodeIdx is
// accepted but not read: the distance budget is always counted from the
// end of the path, not from the train's current position.
func (c *Conductor) ActivatePath(trainID int32, path *Path, maxDistance int32, currentNodeIdx int32) *ActivationResult {
	var result *ActivationResult
	c.do(func() {
		result = c.activatePathLocked(trainID, path, maxDistance, currentNodeIdx)
	})
	return result
}

func (c *Conductor) activatePathLocked(trainID int32, path *Path, maxDistance int32, currentNodeIdx int32) *ActivationResult {
	res := &ActivationResult{FurthestActivated: -1, NextSensor: -1, BlockingTrainID: -1}
	if len(path.Nodes) == 0 {
		res.StopReason = StopEndOfPath
		return res
	}

	starts := blockBoundaryStarts(path, c)
	if len(starts) == 0 {
		res.StopReason = StopEndOfPath
		return res
	}

	tick := int64(0)
	if c.clock != nil {
		tick, _ = c.clock.Time(context.Background())
	}

	var reserved []int32
	var traveled int32
	already := map[int32]bool{}

	for i := len(starts) - 1; i >= 0; i-- {
		startIdx := starts[i]
		endIdx := len(path.Nodes)
		if i+1 < len(starts) {
			endIdx = starts[i+1]
		}
		entryNode := path.Nodes[startIdx].NodeIdx
		b := c.blockForNode(entryNode)
		if b == nil {
			continue
		}

		segDist := segmentDistance(path, startIdx, endIdx, c.graph)
		if traveled+segDist > maxDistance {
			res.StopReason = StopMaxDistanceReached
			break
		}

		if already[b.ID] {
			res.StopReason = StopAlreadyReservedThisSession
			break
		}
		if b.OwnerTrainID != 0 && b.OwnerTrainID != trainID {
			res.StopReason = StopBlockUnavailable
			res.BlockingTrainID = b.OwnerTrainID
			break
		}

		if b.OwnerTrainID == 0 {
			c.reserveBlock(b, trainID, entryNode, tick)
		}
		already[b.ID] = true
		reserved = append(reserved, b.ID)
		traveled += segDist
		res.FurthestActivated = path.Nodes[startIdx].NodeIdx
	}

	// forward pass: set every branch switch the path needs, plus any
	// merge node's reverse branch that falls inside a block we just
	// reserved (spec.md §4.6's "so the train can leave the block on its
	// return").
	// A path node's SwitchDir is the edge taken at its predecessor, so a
	// branch's required direction is carried by the node after it.
	for i, pn := range path.Nodes {
		node := c.graph.At(pn.NodeIdx)
		if node.Type == topology.NodeBranch && i+1 < len(path.Nodes) {
			if sw, ok := c.switches[pn.NodeIdx]; ok {
				sw.Direction = path.Nodes[i+1].SwitchDir
				c.store.setSwitch(sw)
			}
		}
		if node.Type == topology.NodeMerge {
			revIdx := node.Reverse
			if sw, ok := c.switches[revIdx]; ok {
				if b := c.blockForNode(pn.NodeIdx); b != nil && already[b.ID] {
					sw.Direction = topology.DirStraight
					c.store.setSwitch(sw)
				}
			}
		}
	}

	// Reverse `reserved` into path order (we built it tail-first).
	for l, r := 0, len(reserved)-1; l < r; l, r = l+1, r-1 {
		reserved[l], reserved[r] = reserved[r], reserved[l]
	}
	res.ReservedBlocks = reserved

	if res.FurthestActivated >= 0 {
		for i, pn := range path.Nodes {
			if pn.NodeIdx == res.FurthestActivated && i+1 < len(path.Nodes) {
				res.NextSensor = path.Nodes[i+1].NodeIdx
				res.NextSensorDistance = segmentDistance(path, i, i+1, c.graph)
				break
			}
		}
	}

	return res
}

// segmentDistance sums edge distances for path.Nodes[from:to].
func segmentDistance(path *Path, from, to int, g *topology.Graph) int32 {
	var total int32
	for i := from; i < to-1 && i+1 < len(path.Nodes); i++ {
		u, v := path.Nodes[i], path.Nodes[i+1]
		if v.ReverseHere {
			continue
		}
		d, ok := g.EdgeDistance(u.NodeIdx, v.SwitchDir)
		if ok {
			total += d
		}
	}
	return total
}
