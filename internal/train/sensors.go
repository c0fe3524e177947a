package train

import (
	"context"
	"log"

	"trainctl-go/internal/kinematic"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/topology"
	"trainctl-go/x/conv"
	"trainctl-go/x/fixedpoint"
	"trainctl-go/x/mathx"
)

// Tolerances and timeouts for sensor-event acceptance (spec.md §4.7
// "Sensor timeouts"/"Expected sensor validation").
const (
	SensorToleranceInteriorTicks = 200 // 2s
	SensorToleranceBoundaryTicks = 300 // 3s, boundary sensors see more jitter
	SensorTimeoutMinGraceTicks   = 400 // 4s, spec's "at least 4s" floor
	PlausibilityFactor           = 3
)

// processOneSensorEvent is pass step 4: first try the blacklisted-sensor
// synthesis path, then drain at most one real sensor event, then check
// for timeouts regardless of which of those fired.
func (tr *Train) processOneSensorEvent(ctx context.Context, now int64) {
	if !tr.trySynthesizeBlacklisted(ctx, now) {
		if _, payload, ok := tr.sensorSub.ReceiveNonBlock(); ok {
			if ev, ok := payload.(msgqueue.SensorUpdateEvent); ok && ev.Triggered {
				tr.handleSensorEvent(ctx, ev, now)
			}
		}
	}
	tr.checkSensorTimeouts(ctx, now)
}

// trySynthesizeBlacklisted reports whether the train's first expected
// sensor is on the conductor's permanent blacklist; if the kinematic
// position estimate has already carried the train past where that sensor
// sits, it synthesizes the arrival itself instead of waiting for an event
// that will never be published (spec.md §4.7 "Blacklisted sensors").
func (tr *Train) trySynthesizeBlacklisted(ctx context.Context, now int64) bool {
	es := tr.Motion.Expected[0]
	if es.NodeIdx < 0 {
		return false
	}
	sensorID := tr.graph.At(es.NodeIdx).ID
	if !tr.cond.IsSensorBlacklisted(sensorID) {
		return false
	}
	if tr.Motion.Position.OffsetMM < es.DistanceMM {
		return false
	}
	tr.arriveAt(ctx, es.NodeIdx, now)
	return true
}

// handleSensorEvent runs the four acceptance checks from spec.md §4.7 in
// order, rejecting (discarding the event) at the first one that fails:
// (a) the sensor is one of the two currently expected, (b) its block is
// owned by this train or free, (c) it didn't trip implausibly early for
// its tolerance class, (d) the implied velocity since the slot was set is
// physically plausible. Acceptance feeds the sample back into the
// kinematic table and advances localization.
func (tr *Train) handleSensorEvent(ctx context.Context, ev msgqueue.SensorUpdateEvent, now int64) {
	slot := -1
	for i := range tr.Motion.Expected {
		es := tr.Motion.Expected[i]
		if es.NodeIdx < 0 {
			continue
		}
		if tr.graph.At(es.NodeIdx).ID == ev.SensorID {
			slot = i
			break
		}
	}
	if slot < 0 {
		return
	}
	es := tr.Motion.Expected[slot]

	if owner := tr.cond.OwnerOfNode(es.NodeIdx); owner != 0 && owner != tr.ID {
		return
	}

	tolerance := int64(SensorToleranceInteriorTicks)
	if tr.cond.IsBlockBoundary(es.NodeIdx) {
		tolerance = SensorToleranceBoundaryTicks
	}
	if ev.LastTriggeredTick < es.ArrivalTick-tolerance {
		return
	}

	logSensorTiming(tr.ID, tr.graph.At(es.NodeIdx).Name, ev.LastTriggeredTick-es.ArrivalTick)

	if elapsed := ev.LastTriggeredTick - es.SetAtTick; elapsed > 0 {
		v := kinematic.VelocityFromDistanceTime(int64(es.DistanceMM), elapsed)
		if !tr.plausibleVelocity(v) {
			return
		}
		tr.table.Refine(tr.Motion.CommandedLevel, tr.Motion.ApproachFromHigher, v, 0)
	}

	tr.arriveAt(ctx, es.NodeIdx, now)
}

// arriveAt commits localization to nodeIdx (whether from a real or
// synthesized sensor event), recomputes the two-ahead expected-sensor
// set, and releases the block just exited once enough look-ahead is held.
func (tr *Train) arriveAt(ctx context.Context, nodeIdx int32, now int64) {
	exited := tr.Motion.Position.NodeIdx
	tr.Motion.Position = Position{NodeIdx: nodeIdx, OffsetMM: 0}
	tr.recomputeExpectedSensors(now)
	tr.maybeReleaseExitedBlock(ctx, exited)
}

func (tr *Train) plausibleVelocity(v fixedpoint.Q) bool {
	top := tr.table.Lookup(kinematic.MaxSpeedLevel, false).Velocity
	if top <= 0 {
		return v >= 0
	}
	return mathx.Between(int64(v), 0, int64(top)*PlausibilityFactor)
}

// logSensorTiming records the early/late/on-time delta for an accepted
// sensor event (spec.md §4.7: "record the timing delta (log early/late/
// on-time)"), in milliseconds. deltaTicks can be negative (early), so it
// uses conv.Itoa rather than conv.Utoa's unsigned-only writer.
func logSensorTiming(trainID int32, sensorName string, deltaTicks int64) {
	word := "on-time"
	switch {
	case deltaTicks < 0:
		word = "early"
	case deltaTicks > 0:
		word = "late"
	}
	var buf [20]byte
	log.Printf("[train %d] sensor %s %s by %sms", trainID, sensorName, word, conv.Itoa(buf[:], deltaTicks*10))
}

// checkSensorTimeouts flags any expected-sensor slot whose deadline has
// passed (logging once per slot), and emergency-stops the train if every
// currently set slot has timed out while it is still commanded to move
// (spec.md §4.7 "Sensor timeouts").
func (tr *Train) checkSensorTimeouts(ctx context.Context, now int64) {
	anySet := false
	allTimedOut := true
	for i := range tr.Motion.Expected {
		es := &tr.Motion.Expected[i]
		if es.NodeIdx < 0 {
			continue
		}
		anySet = true
		if now > es.DeadlineTick {
			es.TimedOut = true
			if !es.LoggedTimeout {
				es.LoggedTimeout = true
				log.Printf("train %d: sensor %s timed out (expected by tick %d, now %d)",
					tr.ID, tr.graph.At(es.NodeIdx).Name, es.DeadlineTick, now)
			}
		} else {
			allTimedOut = false
		}
	}
	if anySet && allTimedOut && tr.Motion.RequestedLevel > 0 {
		tr.emergencyStop(ctx)
		tr.Motion.Expected = [2]ExpectedSensor{{NodeIdx: -1}, {NodeIdx: -1}}
	}
}

// makeExpected builds an ExpectedSensor slot for a sensor distMM ahead,
// deriving its arrival/deadline ticks from the commanded level's target
// velocity, with at least SensorTimeoutMinGraceTicks of grace.
func (tr *Train) makeExpected(nodeIdx, distMM int32, now int64) ExpectedSensor {
	v := tr.table.Lookup(tr.Motion.CommandedLevel, tr.Motion.ApproachFromHigher).Velocity
	ticks := kinematic.TimeForDistance(int64(distMM), v)
	grace := mathx.Max(ticks/2, int64(SensorTimeoutMinGraceTicks))
	return ExpectedSensor{
		NodeIdx:      nodeIdx,
		DistanceMM:   distMM,
		SetAtTick:    now,
		ArrivalTick:  now + ticks,
		DeadlineTick: now + ticks + grace,
	}
}

// recomputeExpectedSensors refreshes the two-ahead expected-sensor set
// from the active path if one exists, or by walking the live switch
// positions otherwise (manual mode, or a waypoint train between paths).
func (tr *Train) recomputeExpectedSensors(now int64) {
	var found []ExpectedSensor
	if tr.Nav.ActivePath != nil {
		found = tr.expectedFromPath(now)
	} else {
		found = tr.expectedFromLiveSwitches(now, 2)
	}
	for i := 0; i < 2; i++ {
		if i < len(found) {
			tr.Motion.Expected[i] = found[i]
		} else {
			tr.Motion.Expected[i] = ExpectedSensor{NodeIdx: -1}
		}
	}
}

func (tr *Train) expectedFromPath(now int64) []ExpectedSensor {
	path := tr.Nav.ActivePath
	idx := -1
	for i, pn := range path.Nodes {
		if pn.NodeIdx == tr.Motion.Position.NodeIdx {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	var out []ExpectedSensor
	var accumulated int32
	for i := idx; i+1 < len(path.Nodes) && len(out) < 2; i++ {
		u, v := path.Nodes[i], path.Nodes[i+1]
		if !v.ReverseHere {
			if d, ok := tr.graph.EdgeDistance(u.NodeIdx, v.SwitchDir); ok {
				accumulated += d
			}
		}
		node := tr.graph.At(v.NodeIdx)
		if node.Type == topology.NodeSensor {
			out = append(out, tr.makeExpected(v.NodeIdx, accumulated, now))
		}
	}
	return out
}

// expectedFromLiveSwitches walks forward from the train's current
// position using the conductor's live switch positions rather than a
// reserved path, stopping once maxCount sensors are found or the walk
// exceeds a generous defensive bound.
func (tr *Train) expectedFromLiveSwitches(now int64, maxCount int) []ExpectedSensor {
	const maxWalk = 50
	var out []ExpectedSensor
	cur := tr.Motion.Position.NodeIdx
	var accumulated int32
	for steps := 0; steps < maxWalk && len(out) < maxCount; steps++ {
		node := tr.graph.At(cur)
		dir := topology.DirAhead
		if node.Type == topology.NodeBranch {
			if d, ok := tr.cond.SwitchDirection(cur); ok {
				dir = d
			}
		}
		d, ok := tr.graph.EdgeDistance(cur, dir)
		if !ok {
			break
		}
		accumulated += d
		next := node.Edges[dir].Dest
		nextNode := tr.graph.At(next)
		if nextNode.Type == topology.NodeSensor {
			out = append(out, tr.makeExpected(next, accumulated, now))
		}
		cur = next
	}
	return out
}

// maybeReleaseExitedBlock frees the block the train just left, but only
// once the blocks still reserved ahead cover at least the current
// stopping distance (spec.md §4.6/§4.7 "hold the exited block until
// enough look-ahead is secured").
func (tr *Train) maybeReleaseExitedBlock(ctx context.Context, exitedNode int32) {
	if !tr.hasLookaheadCoverage() {
		return
	}
	blockID := tr.cond.BlockIDForNode(exitedNode)
	tr.cond.ReleaseNode(tr.ID, exitedNode)
	if blockID >= 0 {
		for i, id := range tr.Nav.ReservedBlocks {
			if id == blockID {
				tr.Nav.ReservedBlocks = append(tr.Nav.ReservedBlocks[:i], tr.Nav.ReservedBlocks[i+1:]...)
				break
			}
		}
	}
}

func (tr *Train) hasLookaheadCoverage() bool {
	if tr.Nav.ActivePath == nil || tr.Nav.FurthestActivated < 0 {
		return true
	}
	d, ok := remainingPathDistance(tr.Nav.ActivePath, tr.graph, tr.Motion.Position.NodeIdx, tr.Nav.FurthestActivated)
	if !ok {
		return true
	}
	return d >= tr.Motion.StoppingDistanceMM
}
