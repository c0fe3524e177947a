package conductor

import (
	"context"
	"time"

	"trainctl-go/errcode"
	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/msgqueue"
	"trainctl-go/internal/topology"
)

// SetSwitch commands the turnout at nodeIdx to dir. If disengageSolenoid,
// a follow-up SolenoidOff is scheduled at Low priority after
// cmdscheduler.SolenoidOffDelay so the point motor isn't left energized
// (spec.md §4.6). If force is false and the switch is already at dir, the
// command is skipped entirely — the teacher's bridge does the same
// "already there" short circuit for relay commands.
func (c *Conductor) SetSwitch(ctx context.Context, nodeIdx int32, dir topology.Direction, disengageSolenoid, force bool) error {
	var resultErr error
	c.do(func() {
		sw, ok := c.switches[nodeIdx]
		if !ok {
			resultErr = errcode.Wrap(errcode.InvalidArgument, "conductor.SetSwitch", nil)
			return
		}
		if !force && sw.Direction == dir {
			return
		}

		op := cmdscheduler.OpSwitchStraight
		if dir == topology.DirCurved {
			op = cmdscheduler.OpSwitchCurved
		}
		sw32 := c.graph.At(nodeIdx).ID

		gap := int64(cmdscheduler.SwitchGapTicks)
		if disengageSolenoid {
			gap = cmdscheduler.SwitchSolenoidGapTicks
		}
		err := c.sched.Enqueue(ctx, &cmdscheduler.Command{
			Bytes:    []byte{op, byte(sw32)},
			GapTicks: gap,
			Priority: cmdscheduler.High,
			TrainID:  -1,
			Blocking: true,
		})
		if err != nil {
			resultErr = errcode.Wrap(errcode.Communication, "conductor.SetSwitch", err)
			return
		}

		sw.Direction = dir
		tick, _ := c.clock.Time(ctx)
		sw.LastChangedTick = tick
		c.store.setSwitch(sw)
		c.mq.Publish(msgqueue.SwitchState, msgqueue.SwitchStateEvent{
			SwitchID:        sw32,
			Direction:       int32(dir),
			LastChangedTick: tick,
		})

		if disengageSolenoid {
			c.scheduleSolenoidOff()
		}
	})
	return resultErr
}

// scheduleSolenoidOff enqueues the low-priority follow-up command after
// cmdscheduler.SolenoidOffDelay. It is fire-and-forget: the scheduler's
// own dedup logic (spec.md §4.4) collapses repeated SolenoidOff commands,
// so there is no need to track or cancel this from here.
func (c *Conductor) scheduleSolenoidOff() {
	go func() {
		time.Sleep(cmdscheduler.SolenoidOffDelay)
		ctx, cancel := context.WithTimeout(context.Background(), cmdscheduler.SolenoidOffDelay)
		defer cancel()
		_ = c.sched.Enqueue(ctx, &cmdscheduler.Command{
			Bytes:    []byte{cmdscheduler.OpSolenoidOff},
			GapTicks: cmdscheduler.DefaultGapTicks,
			Priority: cmdscheduler.Low,
			TrainID:  -1,
		})
	}()
}

// SwitchDirection returns the conductor's last-commanded direction for the
// turnout at nodeIdx.
func (c *Conductor) SwitchDirection(nodeIdx int32) (topology.Direction, bool) {
	var dir topology.Direction
	var ok bool
	c.do(func() {
		sw, found := c.switches[nodeIdx]
		if !found {
			return
		}
		dir, ok = sw.Direction, true
	})
	return dir, ok
}
