package conductor

import "trainctl-go/internal/msgqueue"

// Block is a contiguous, self-contained stretch of track bounded by entry
// and exit sensors: every legal route between any two of a block's
// boundary sensors stays entirely inside it. Mirrors
// original_source's track_block_struct (block.h) field for field, with
// Go-native slices standing in for the fixed-capacity C arrays.
type Block struct {
	ID int32

	EntrySensors []int32 // node indices
	ExitSensors  []int32
	Internal     []int32 // internal (non-boundary) sensor node indices
	Turnouts     []int32 // branch/merge node indices inside this block
	Connected    []int32 // adjacent block IDs

	OwnerTrainID    int32 // 0 = free
	ReservationTick int64
	Occupied        bool
	CurrentEntry    int32 // node index the current owner entered from, -1 if none
	OccupancyTick   int64
}

func (b *Block) free() bool { return b.OwnerTrainID == 0 }

// containsNode reports whether node idx is a boundary or internal member
// of this block (used to find "the block containing node N").
func (b *Block) containsNode(idx int32) bool {
	for _, n := range b.EntrySensors {
		if n == idx {
			return true
		}
	}
	for _, n := range b.ExitSensors {
		if n == idx {
			return true
		}
	}
	for _, n := range b.Internal {
		if n == idx {
			return true
		}
	}
	for _, n := range b.Turnouts {
		if n == idx {
			return true
		}
	}
	return false
}

// blockForNode returns the block containing node idx, or nil.
func (c *Conductor) blockForNode(idx int32) *Block {
	for _, b := range c.blocks {
		if b.containsNode(idx) {
			return b
		}
	}
	return nil
}

// reserve assigns block b to train, publishing a BlockReservation event.
// Caller must already hold the single-goroutine invariant (called only
// from inside Conductor.run).
func (c *Conductor) reserveBlock(b *Block, trainID int32, entryNode int32, tick int64) {
	b.OwnerTrainID = trainID
	b.ReservationTick = tick
	b.CurrentEntry = entryNode
	c.store.setBlock(b)
	c.publishBlock(b, msgqueue.BlockReserved)
}

// releaseBlock frees b unconditionally, publishing a BlockReservation event.
func (c *Conductor) releaseBlock(b *Block) {
	b.OwnerTrainID = 0
	b.Occupied = false
	b.CurrentEntry = -1
	c.store.setBlock(b)
	c.publishBlock(b, msgqueue.BlockFree)
}

func (c *Conductor) publishBlock(b *Block, status msgqueue.BlockStatus) {
	entryName := ""
	if b.CurrentEntry >= 0 {
		entryName = c.graph.At(b.CurrentEntry).Name
	}
	c.mq.Publish(msgqueue.BlockReservation, msgqueue.BlockReservationEvent{
		BlockID:         b.ID,
		OwnerTrainID:    b.OwnerTrainID,
		Status:          status,
		Timestamp:       b.ReservationTick,
		EntrySensorName: entryName,
	})
}

// ReleaseAllExcept frees every block owned by trainID except (optionally)
// the block containing keepNode, atomically: the caller relies on this to
// ensure the train still owns its current block after the call (spec.md
// §4.6 "Block release").
func (c *Conductor) ReleaseAllExcept(trainID int32, keepNode int32, hasKeep bool) {
	c.do(func() {
		var keepBlock *Block
		if hasKeep {
			keepBlock = c.blockForNode(keepNode)
		}
		for _, b := range c.blocks {
			if b.OwnerTrainID != trainID {
				continue
			}
			if keepBlock != nil && b.ID == keepBlock.ID {
				continue
			}
			c.releaseBlock(b)
		}
	})
}

// ReleaseNode frees the single block containing node, if owned by trainID.
func (c *Conductor) ReleaseNode(trainID int32, node int32) {
	c.do(func() {
		b := c.blockForNode(node)
		if b == nil || b.OwnerTrainID != trainID {
			return
		}
		c.releaseBlock(b)
	})
}
