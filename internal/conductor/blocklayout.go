package conductor

import "trainctl-go/internal/topology"

// blockDef is the declarative, hardcoded block table shape, named after
// original_source's BLOCK_DEF macro (block_definitions.h): id, entry
// sensors, exit sensors, internal sensors, turnouts, and connected block
// ids, all expressed as node names resolved against the track graph at
// load time rather than indices baked in by hand.
type blockDef struct {
	id        int32
	entries   []string
	exits     []string
	internal  []string
	turnouts  []string
	connected []int32
}

// layoutABlocks is the block table for topology.LayoutA. Four blocks: the
// approach leg up to the branch, the two alternative legs (mainline and
// siding) the branch can route into, and the leg from the merge out to the
// exit.
func layoutABlocks() []blockDef {
	return []blockDef{
		{id: 1, entries: []string{"SA1", "SA2R"}, exits: []string{"SA2", "SA1R"}, turnouts: []string{"BR1", "MG2"}, connected: []int32{2, 3}},
		{id: 2, entries: []string{"SA3", "SA3R"}, connected: []int32{1, 4}},
		{id: 3, entries: []string{"SD1", "SD2R"}, exits: []string{"SD2", "SD1R"}, connected: []int32{1, 4}},
		{id: 4, entries: []string{"SA4", "SA4R"}, turnouts: []string{"MG1", "BR2"}, connected: []int32{2, 3}},
	}
}

func resolveNames(g *topology.Graph, names []string) []int32 {
	out := make([]int32, 0, len(names))
	for _, n := range names {
		out = append(out, g.MustIndex(n))
	}
	return out
}

func buildBlocks(g *topology.Graph, defs []blockDef) map[int32]*Block {
	blocks := make(map[int32]*Block, len(defs))
	for _, d := range defs {
		blocks[d.id] = &Block{
			ID:           d.id,
			EntrySensors: resolveNames(g, d.entries),
			ExitSensors:  resolveNames(g, d.exits),
			Internal:     resolveNames(g, d.internal),
			Turnouts:     resolveNames(g, d.turnouts),
			Connected:    append([]int32(nil), d.connected...),
			CurrentEntry: -1,
		}
	}
	return blocks
}
