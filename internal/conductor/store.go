package conductor

import (
	"github.com/tidwall/buntdb"

	"trainctl-go/x/conv"
	"trainctl-go/x/fmtx"
)

// The key builders below use conv.Utoa's fixed-width digit writer rather
// than fmt.Sprintf: ids here are always small non-negative node/block
// indices, and store mutations run on every sensor poll and block/switch
// change, often several times per tick across the whole fleet.

func blockKey(id int32) string {
	var buf [20]byte
	return "block:" + string(conv.Utoa(buf[:], uint64(id)))
}

func switchKey(nodeIdx int32) string {
	var buf [20]byte
	return "switch:" + string(conv.Utoa(buf[:], uint64(nodeIdx)))
}

func sensorKey(sensorID int32) string {
	var buf [20]byte
	return "sensor:" + string(conv.Utoa(buf[:], uint64(sensorID)))
}

// store is the conductor's queryable read-model: every block reservation,
// switch throw, and sensor transition is mirrored into an in-memory
// buntdb as it happens, so external callers (the snapshot HTTP endpoint,
// the TUI) can run ad-hoc key/prefix scans without routing a request
// through the conductor's own single goroutine. The graph and the heap
// above remain the source of truth; this is a derived index, rebuilt
// from scratch on every New.
type store struct {
	db *buntdb.DB
}

func newStore() *store {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		// :memory: never fails to open; a non-nil error here means the
		// buntdb build itself is broken.
		panic(err)
	}
	return &store{db: db}
}

func (s *store) setBlock(b *Block) {
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		key := blockKey(b.ID)
		val := fmtx.Sprintf("owner=%d occupied=%t entry=%d tick=%d", b.OwnerTrainID, b.Occupied, b.CurrentEntry, b.ReservationTick)
		_, _, err := tx.Set(key, val, nil)
		return err
	})
}

func (s *store) setSwitch(sw *Switch) {
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		key := switchKey(sw.NodeIdx)
		val := fmtx.Sprintf("dir=%s tick=%d", sw.Direction, sw.LastChangedTick)
		_, _, err := tx.Set(key, val, nil)
		return err
	})
}

func (s *store) setSensor(sensorID int32, triggered bool, tick int64) {
	_ = s.db.Update(func(tx *buntdb.Tx) error {
		key := sensorKey(sensorID)
		val := fmtx.Sprintf("triggered=%t tick=%d", triggered, tick)
		_, _, err := tx.Set(key, val, nil)
		return err
	})
}

// Snapshot returns every key/value pair under the given prefix ("block:",
// "switch:", or "sensor:"), for diagnostics and the HTTP snapshot
// endpoint.
func (s *store) Snapshot(prefix string) map[string]string {
	out := map[string]string{}
	_ = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, value string) bool {
			out[key] = value
			return true
		})
	})
	return out
}

func (s *store) Close() error { return s.db.Close() }
