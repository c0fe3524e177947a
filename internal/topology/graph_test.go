package topology

import "testing"

func TestLayoutAValidates(t *testing.T) {
	g := LayoutA()
	if err := g.Validate(); err != nil {
		t.Fatalf("LayoutA invalid: %v", err)
	}
}

func TestLayoutALookup(t *testing.T) {
	g := LayoutA()
	i := g.MustIndex("BR1")
	n := g.At(i)
	if n.Type != NodeBranch {
		t.Fatalf("BR1 should be a branch, got %v", n.Type)
	}
	straight, ok := g.EdgeDistance(i, DirStraight)
	if !ok || straight != 500 {
		t.Fatalf("BR1 straight edge = %d, %v", straight, ok)
	}
	curved, ok := g.EdgeDistance(i, DirCurved)
	if !ok || curved != 650 {
		t.Fatalf("BR1 curved edge = %d, %v", curved, ok)
	}
}

func TestLayoutAUnknownNode(t *testing.T) {
	g := LayoutA()
	if g.Index("NOPE") != -1 {
		t.Fatal("expected -1 for unknown node")
	}
}

func TestReversalBlacklist(t *testing.T) {
	bl := NewReversalBlacklist()
	if bl.Contains(5) {
		t.Fatal("fresh blacklist should not contain node 5")
	}
	if !bl.Add(5) {
		t.Fatal("Add should succeed on fresh filter")
	}
	if !bl.Contains(5) {
		t.Fatal("expected node 5 to be blacklisted after Add")
	}
	bl.Remove(5)
	if bl.Contains(5) {
		t.Fatal("expected node 5 to be cleared after Remove")
	}
}

func TestSensorBlacklistLogOnce(t *testing.T) {
	sb := NewSensorBlacklist(0)
	idx := int32(3)
	if sb.AlreadyLogged(idx) {
		t.Fatal("should not be logged yet")
	}
	sb.MarkLogged(idx)
	if !sb.AlreadyLogged(idx) {
		t.Fatal("expected logged flag to stick")
	}
}
