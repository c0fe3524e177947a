package topology

// LayoutA is the default track layout: a single mainline with one siding
// reachable through a branch/merge pair. It is small on purpose — just
// large enough to exercise every node type, both switches, a reversal at
// either dead end, and a siding detour — and is authored by hand as a
// literal table, the same way the original controller's track data was a
// hardcoded, layout-specific array rather than something derived at
// runtime.
//
// Physical stretch, forward direction:
//
//	EN1 -(300)-> SA1 -(400)-> SA2 -(350)-> BR1 -(500 straight)-> SA3 -\
//	                                        |                          MG1 -(150)-> SA4 -(150)-> EX1
//	                                        \-(650 curved)-> SD1 -(300)-> SD2 -/
//
// Every node above also has a reverse counterpart (suffixed R) that carries
// the mirror-image edges, so the graph is a strongly connected bidirectional
// structure: BR1's reverse is the merge MG2, and MG1's reverse is the branch
// BR2. Switch IDs: BR1 is switch 1, BR2 is switch 2.
// DefaultBlacklistedSensorIDs lists the sensor hardware ids treated as
// permanently broken on LayoutA (spec.md §4.7 "Blacklisted sensors"): SA4
// (id 6), the approach sensor just before the exit, is wired as the one
// known-bad detector so the synthesized-trigger path has something to
// exercise without real hardware.
func DefaultBlacklistedSensorIDs() []int32 {
	return []int32{6}
}

func LayoutA() *Graph {
	b := newBuilder()

	// Forward chain.
	b.add("EN1", NodeEnter, 0)
	b.add("SA1", NodeSensor, 1)
	b.add("SA2", NodeSensor, 2)
	b.add("BR1", NodeBranch, 1) // switch 1
	b.add("SA3", NodeSensor, 3)
	b.add("SD1", NodeSensor, 4)
	b.add("SD2", NodeSensor, 5)
	b.add("MG1", NodeMerge, 0)
	b.add("SA4", NodeSensor, 6)
	b.add("EX1", NodeExit, 0)

	// Reverse chain.
	b.add("EN1X", NodeExit, 0)  // reverse of EN1
	b.add("SA1R", NodeSensor, 1)
	b.add("SA2R", NodeSensor, 2)
	b.add("MG2", NodeMerge, 0) // reverse of BR1
	b.add("SA3R", NodeSensor, 3)
	b.add("SD1R", NodeSensor, 4)
	b.add("SD2R", NodeSensor, 5)
	b.add("BR2", NodeBranch, 2) // switch 2, reverse of MG1
	b.add("SA4R", NodeSensor, 6)
	b.add("EX1E", NodeEnter, 0) // reverse of EX1

	for _, p := range [][2]string{
		{"EN1", "EN1X"}, {"SA1", "SA1R"}, {"SA2", "SA2R"}, {"BR1", "MG2"},
		{"SA3", "SA3R"}, {"SD1", "SD1R"}, {"SD2", "SD2R"}, {"MG1", "BR2"},
		{"SA4", "SA4R"}, {"EX1", "EX1E"},
	} {
		b.setReverse(p[0], p[1])
	}

	// Forward edges.
	b.edge("EN1", DirAhead, "SA1", 300, 0)
	b.edge("SA1", DirAhead, "SA2", 400, 0)
	b.edge("SA2", DirAhead, "BR1", 350, 0)
	b.edge("BR1", DirStraight, "SA3", 500, 0)
	b.edge("BR1", DirCurved, "SD1", 650, 1200) // curved route, slightly higher resistance
	b.edge("SA3", DirAhead, "MG1", 300, 0)
	b.edge("SD1", DirAhead, "SD2", 300, 0)
	b.edge("SD2", DirAhead, "MG1", 300, 0)
	b.edge("MG1", DirAhead, "SA4", 150, 0)
	b.edge("SA4", DirAhead, "EX1", 150, 0)

	// Reverse edges (mirror image; same distances/resistances as the
	// forward edge whose reverse they represent).
	b.edge("EX1E", DirAhead, "SA4R", 150, 0)
	b.edge("SA4R", DirAhead, "BR2", 150, 0)
	b.edge("BR2", DirStraight, "SA3R", 300, 0)
	b.edge("BR2", DirCurved, "SD2R", 300, 0)
	b.edge("SA3R", DirAhead, "MG2", 500, 0)
	b.edge("SD2R", DirAhead, "SD1R", 300, 0)
	b.edge("SD1R", DirAhead, "MG2", 650, 1200)
	b.edge("MG2", DirAhead, "SA2R", 350, 0)
	b.edge("SA2R", DirAhead, "SA1R", 400, 0)
	b.edge("SA1R", DirAhead, "EN1X", 300, 0)

	return b.build()
}
