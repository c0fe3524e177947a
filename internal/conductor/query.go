package conductor

import "context"

// Reassert refreshes the reservation tick and occupied flag of the block
// containing node for trainID (spec.md §4.7 step 3, "re-asserts its block
// reservation every pass"); a no-op if trainID doesn't own that block. This
// keeps Block.Occupied accurate for the HTTP/TUI read-model without
// requiring a separate occupancy-only message.
func (c *Conductor) Reassert(ctx context.Context, trainID, nodeIdx int32) {
	c.do(func() {
		b := c.blockForNode(nodeIdx)
		if b == nil || b.OwnerTrainID != trainID {
			return
		}
		tick, _ := c.clock.Time(ctx)
		b.ReservationTick = tick
		b.OccupancyTick = tick
		b.Occupied = true
		c.store.setBlock(b)
	})
}

// BlockIDForNode returns the ID of the block containing node idx, or -1.
func (c *Conductor) BlockIDForNode(idx int32) int32 {
	var id int32 = -1
	c.do(func() {
		if b := c.blockForNode(idx); b != nil {
			id = b.ID
		}
	})
	return id
}

// IsBlockBoundary reports whether node idx is one of its block's entry or
// exit sensors, as opposed to an internal sensor.
func (c *Conductor) IsBlockBoundary(idx int32) bool {
	var boundary bool
	c.do(func() {
		b := c.blockForNode(idx)
		if b == nil {
			return
		}
		for _, n := range b.EntrySensors {
			if n == idx {
				boundary = true
				return
			}
		}
		for _, n := range b.ExitSensors {
			if n == idx {
				boundary = true
				return
			}
		}
	})
	return boundary
}

// OwnerOfNode returns the train id owning the block that contains node
// idx, or 0 if the node isn't in any block or the block is free. Trains
// use this for collision-avoidance (spec.md §4.7 "unified stopping"
// priority 1): a block within the safety margin ahead that isn't owned by
// the asking train is an emergency-stop condition.
func (c *Conductor) OwnerOfNode(idx int32) int32 {
	var owner int32
	c.do(func() {
		if b := c.blockForNode(idx); b != nil {
			owner = b.OwnerTrainID
		}
	})
	return owner
}

// IsSensorBlacklisted reports whether sensorID is a permanently broken
// sensor (spec.md §4.7 "Blacklisted sensors"): the conductor's sensor
// poller never publishes an update for one, and a train controller whose
// expected next sensor is blacklisted synthesizes its own trigger from
// the kinematic position estimate instead of waiting for one.
func (c *Conductor) IsSensorBlacklisted(sensorID int32) bool {
	return c.sensorBlacklist.AlreadyLogged(sensorID)
}
