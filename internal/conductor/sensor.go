package conductor

import (
	"context"
	"time"

	"trainctl-go/internal/cmdscheduler"
	"trainctl-go/internal/ioserver"
	"trainctl-go/internal/msgqueue"
)

// SensorPollInterval is how often the conductor asks the Märklin track
// controller to report every sensor bank. spec.md §4.6 leaves this as an
// open question; resolved here at 250ms, matching the switch solenoid
// settle time (cmdscheduler.SolenoidOffDelay) since that's the shortest
// interval the hardware's debounce window tolerates without missing
// transitions.
const SensorPollInterval = 250 * time.Millisecond

// sensorBanks is the number of banks the "report all banks" opcode
// returns, 5 banks of 16 sensors (80 physical sensors), two bytes per
// bank.
const sensorBanks = 5

// bitReverse reverses the bit order of a byte: the Märklin sensor report
// format transmits each bank's 16 bits MSB-first relative to sensor
// numbering, opposite of the order a naive byte-to-bits read would give.
func bitReverse(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// RunSensorPoller issues a report-all-banks command on SensorPollInterval,
// reads the reply directly off the Marklin channel, and diffs it against
// the previously observed state to publish SensorUpdate events for every
// sensor that changed. It is meant to run in its own goroutine alongside
// Conductor.Run.
func (c *Conductor) RunSensorPoller(ctx context.Context, io *ioserver.Server) {
	ticker := time.NewTicker(SensorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollSensorsOnce(ctx, io)
		}
	}
}

func (c *Conductor) pollSensorsOnce(ctx context.Context, io *ioserver.Server) {
	err := c.sched.Enqueue(ctx, &cmdscheduler.Command{
		Bytes:    []byte{cmdscheduler.OpReportAllBanks},
		GapTicks: cmdscheduler.DefaultGapTicks,
		Priority: cmdscheduler.Medium,
		TrainID:  -1,
	})
	if err != nil {
		return
	}

	raw := make([]byte, sensorBanks*2)
	for i := range raw {
		b, err := io.Getc(ctx, ioserver.Marklin)
		if err != nil {
			return
		}
		raw[i] = bitReverse(b)
	}

	tick, _ := c.clock.Time(ctx)
	c.do(func() {
		for bank := 0; bank < sensorBanks; bank++ {
			hi, lo := raw[bank*2], raw[bank*2+1]
			word := uint16(hi)<<8 | uint16(lo)
			for bit := 0; bit < 16; bit++ {
				sensorID := int32(bank*16 + bit + 1)
				triggered := word&(1<<uint(15-bit)) != 0
				prev := c.sensorState[sensorID]
				if prev == triggered {
					continue
				}
				c.sensorState[sensorID] = triggered
				c.store.setSensor(sensorID, triggered, tick)
				if c.sensorBlacklist.AlreadyLogged(sensorID) {
					continue
				}
				c.mq.Publish(msgqueue.SensorUpdate, msgqueue.SensorUpdateEvent{
					Bank:              int32(bank),
					SensorID:          sensorID,
					Triggered:         triggered,
					LastTriggeredTick: tick,
				})
			}
		}
	})
}
