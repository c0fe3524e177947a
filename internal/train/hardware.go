package train

import (
	"context"

	"trainctl-go/internal/cmdscheduler"
)

// sendSpeedCommand writes this train's speed+headlight byte to the
// Märklin bus: byte1 is the loco address (the train ID), byte2 is the
// speed level with HeadlightBit added in if the headlight is on (spec.md
// §4.6 "Märklin UART wire format").
func (tr *Train) sendSpeedCommand(ctx context.Context, level uint8) error {
	b := level
	if tr.Motion.Headlight {
		b |= cmdscheduler.HeadlightBit
	}
	return tr.sched.Enqueue(ctx, &cmdscheduler.Command{
		Bytes:    []byte{byte(tr.ID), b},
		GapTicks: cmdscheduler.TrainCmdGapTicks,
		Priority: cmdscheduler.Medium,
		TrainID:  tr.ID,
	})
}

// sendReverseCommand issues the magic speed-15 byte that toggles this
// loco's direction relay (spec.md §4.6), then flips the controller's own
// notion of heading and forces a full re-application of speed+headlight on
// the next applyEffectiveSpeed call.
func (tr *Train) sendReverseCommand(ctx context.Context) error {
	err := tr.sched.Enqueue(ctx, &cmdscheduler.Command{
		Bytes:    []byte{byte(tr.ID), cmdscheduler.OpReverse},
		GapTicks: cmdscheduler.TrainCmdGapTicks,
		Priority: cmdscheduler.High,
		TrainID:  tr.ID,
		Blocking: true,
	})
	if err != nil {
		return err
	}
	if tr.Motion.Heading == Forward {
		tr.Motion.Heading = Reverse
	} else {
		tr.Motion.Heading = Forward
	}
	tr.Motion.CommandedLevel = 255 // force re-send on the next pass
	return nil
}

// setHeadlight re-sends the current speed byte with the headlight bit
// changed.
func (tr *Train) setHeadlight(ctx context.Context, on bool) error {
	if tr.Motion.Headlight == on {
		return nil
	}
	tr.Motion.Headlight = on
	return tr.sendSpeedCommand(ctx, tr.Motion.CommandedLevel)
}
