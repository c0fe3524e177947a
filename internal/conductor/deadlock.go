package conductor

import "context"

// FailedPathExpiry bounds how long a failed-path entry stays eligible for
// deadlock analysis (spec.md §4.6 "deadlock detection").
const FailedPathExpiry = 5 // seconds; compared against clock ticks at 100 ticks/s

const ticksPerSecond = 100

// RecordFailedPath appends a failed path attempt to the short ring buffer
// used for mutual-blocking analysis. blockingTrainID is the train that
// currently owns the block that defeated the request, or 0 if the
// failure wasn't block-ownership related.
func (c *Conductor) RecordFailedPath(ctx context.Context, trainID, blockingTrainID, from, to int32) {
	tick, _ := c.clock.Time(ctx)
	c.do(func() {
		c.failedPaths = append(c.failedPaths, failedPathEntry{
			trainID:         trainID,
			from:            from,
			to:              to,
			blockingTrainID: blockingTrainID,
			tick:            tick,
		})
		c.expireFailedPathsLocked(tick)
	})
}

func (c *Conductor) expireFailedPathsLocked(nowTick int64) {
	cutoff := nowTick - FailedPathExpiry*ticksPerSecond
	kept := c.failedPaths[:0]
	for _, e := range c.failedPaths {
		if e.tick >= cutoff {
			kept = append(kept, e)
		}
	}
	c.failedPaths = kept
}

// ExclusionSetFor computes the block-exclusion set a train should retry
// path-finding with, if it and another train are mutually blocking each
// other (spec.md §4.6): each currently has a recent failed request whose
// recorded blocker is the other train. Per spec, only the lower-id train
// in a deadlocked pair detours; a higher-id train calling this for a pair
// it's the higher member of gets nil.
func (c *Conductor) ExclusionSetFor(ctx context.Context, trainID int32) []int32 {
	var excluded []int32
	tick, _ := c.clock.Time(ctx)
	c.do(func() {
		c.expireFailedPathsLocked(tick)
		for _, mine := range c.failedPaths {
			if mine.trainID != trainID {
				continue
			}
			other := mine.blockingTrainID
			if other == 0 || other == trainID {
				continue
			}
			if trainID >= other {
				continue // only the lower-id train of the pair detours
			}
			for _, theirs := range c.failedPaths {
				if theirs.trainID != other {
					continue
				}
				if theirs.blockingTrainID != trainID {
					continue
				}
				// Mutual blocking confirmed: exclude every block `other`
				// currently owns.
				for _, b := range c.blocks {
					if b.OwnerTrainID == other {
						excluded = append(excluded, b.ID)
					}
				}
				return
			}
		}
	})
	return excluded
}
