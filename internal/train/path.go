package train

import (
	"context"

	"trainctl-go/internal/conductor"
	"trainctl-go/internal/kinematic"
	"trainctl-go/internal/topology"
)

// requestPath asks the conductor for a route to the current destination,
// backing off exponentially between attempts and applying the deadlock
// detector's exclusion set once a mutual block is detected (spec.md §4.6
// "Path finding"/"deadlock detection"). Returns true once a path has been
// found and Nav.ActivePath/PathState have been updated accordingly.
func (tr *Train) requestPath(ctx context.Context, now int64) bool {
	if tr.Nav.RetryCount > 0 && now < tr.Nav.NextRetryTick {
		return false
	}

	excluded := tr.cond.ExclusionSetFor(ctx, tr.ID)
	path, err := tr.cond.FindPath(tr.Motion.Position.NodeIdx, tr.Nav.DestinationNode, true, excluded)
	if err != nil {
		blocker := tr.cond.OwnerOfNode(tr.Nav.DestinationNode)
		tr.cond.RecordFailedPath(ctx, tr.ID, blocker, tr.Motion.Position.NodeIdx, tr.Nav.DestinationNode)

		tr.Nav.RetryCount++
		if tr.Nav.RetryCount > MaxPathRetryAttempts {
			tr.Primary = StateError
			return false
		}
		tr.Nav.NextRetryTick = now + kinematic.MSToTicks(tr.pathBackoff.NextBackOff().Milliseconds())
		tr.Nav.LastPathAttemptTick = now
		return false
	}

	tr.Nav.ActivePath = path
	tr.Nav.PathState = PathActive
	tr.Nav.ReservedBlocks = nil
	tr.Nav.FurthestActivated = -1
	tr.Nav.ReversalNodeIdx = firstReversalNode(path)
	tr.Nav.RetryCount = 0
	tr.pathBackoff.Reset()
	tr.recomputeExpectedSensors(now)
	return true
}

func firstReversalNode(path *conductor.Path) int32 {
	for _, pn := range path.Nodes {
		if pn.ReverseHere {
			return pn.NodeIdx
		}
	}
	return -1
}

// extendActivation asks the conductor to reserve and set switches for as
// much more of the active path as the train's current stopping-distance
// budget allows (spec.md §4.6 "Path activation"). Advances PathState to
// PathReached when activation runs off the end of the path, or records a
// failed-path entry (naming the blocking train) when a block ahead is
// owned by someone else; in that case the active path is kept and no new
// route is requested here.
func (tr *Train) extendActivation(ctx context.Context) {
	if tr.Nav.ActivePath == nil {
		return
	}
	budget := ActivationBudgetMM
	res := tr.cond.ActivatePath(tr.ID, tr.Nav.ActivePath, int32(budget), tr.Motion.Position.NodeIdx)
	if res == nil {
		return
	}
	if len(res.ReservedBlocks) > 0 {
		tr.Nav.ReservedBlocks = mergeBlockIDs(tr.Nav.ReservedBlocks, res.ReservedBlocks)
	}
	if res.FurthestActivated >= 0 {
		tr.Nav.FurthestActivated = res.FurthestActivated
	}

	switch res.StopReason {
	case conductor.StopBlockUnavailable:
		tr.cond.RecordFailedPath(ctx, tr.ID, res.BlockingTrainID, tr.Motion.Position.NodeIdx, tr.Nav.DestinationNode)
	case conductor.StopEndOfPath:
		if tr.Nav.PathState == PathActive {
			tr.Nav.PathState = PathReached
		}
	}
}

func mergeBlockIDs(have, more []int32) []int32 {
	seen := map[int32]bool{}
	for _, id := range have {
		seen[id] = true
	}
	out := append([]int32{}, have...)
	for _, id := range more {
		if !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	return out
}

// remainingPathDistance sums the physical distance along path between
// fromNode and uptoNode (inclusive of the edge into uptoNode), both given
// as node indices rather than path-slice positions.
func remainingPathDistance(path *conductor.Path, g *topology.Graph, fromNode, uptoNode int32) (int32, bool) {
	fromIdx, uptoIdx := -1, -1
	for i, pn := range path.Nodes {
		if pn.NodeIdx == fromNode {
			fromIdx = i
		}
		if pn.NodeIdx == uptoNode {
			uptoIdx = i
		}
	}
	if fromIdx < 0 || uptoIdx < 0 || uptoIdx < fromIdx {
		return 0, false
	}
	var total int32
	for i := fromIdx; i < uptoIdx; i++ {
		v := path.Nodes[i+1]
		if v.ReverseHere {
			continue
		}
		if d, ok := g.EdgeDistance(path.Nodes[i].NodeIdx, v.SwitchDir); ok {
			total += d
		}
	}
	return total, true
}

// distanceToDestination sums the remaining path distance from the train's
// current position to its destination node, used by stopping.go's
// destination-distance priority check.
func (tr *Train) distanceToDestination() (int32, bool) {
	if tr.Nav.ActivePath == nil {
		return 0, false
	}
	d, ok := remainingPathDistance(tr.Nav.ActivePath, tr.graph, tr.Motion.Position.NodeIdx, tr.Nav.DestinationNode)
	if !ok {
		return 0, false
	}
	return d - tr.Motion.Position.OffsetMM + tr.Nav.DestinationOffsetMM, true
}
