package track

import "testing"

func newTestManager(mode int) *Manager {
	return NewManager(mode, CV, 20, 100, 100)
}

func TestManagerBirthAllocatesSlotAndSeedsPoss1(t *testing.T) {
	m := newTestManager(3)
	tr := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	if tr.ID != 0 {
		t.Fatalf("expected first track to get ID 0, got %d", tr.ID)
	}
	if tr.CurrentState != Poss1 {
		t.Fatalf("expected birth at Poss1, got %s", tr.CurrentState)
	}
	if tr.HitCount != 1 {
		t.Fatalf("expected hit_count=1 at birth, got %d", tr.HitCount)
	}
	if len(tr.Ingests) != 1 {
		t.Fatalf("expected one ingest recorded at birth, got %d", len(tr.Ingests))
	}
}

func TestManagerIDRecycling(t *testing.T) {
	m := newTestManager(3)
	t0 := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	m.Birth(NewMeasurement(2000, 90, 0, 0, 0)) // track 1, left stale on purpose
	t2 := m.Birth(NewMeasurement(3000, 180, 0, 0, 0))

	// Keep tracks 0 and 2 fresh so only track 1 ages past the timeout.
	m.Ingest(t0, NewMeasurement(1000, 0, 0, 999.95, 0))
	m.Ingest(t2, NewMeasurement(3000, 180, 0, 999.95, 0))

	removed := m.PruneTimedOut(1000, 0.1)
	if len(removed) != 1 || removed[0] != 1 {
		t.Fatalf("expected only track 1 pruned, got %v", removed)
	}

	reborn := m.Birth(NewMeasurement(4000, 270, 0, 1000, 0))
	if reborn.ID != 1 {
		t.Fatalf("expected recycled ID 1, got %d", reborn.ID)
	}
}

func TestManagerPromoteAllDirectToFirm(t *testing.T) {
	m := newTestManager(3) // firm threshold = 2
	tr := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	tr.HitCount = 2
	promoted := m.PromoteAll(0.1)
	if promoted != 1 {
		t.Fatalf("expected 1 promotion, got %d", promoted)
	}
	if tr.CurrentState != Firm {
		t.Fatalf("expected direct promotion to Firm, got %s", tr.CurrentState)
	}
}

func TestManagerPromoteAllOneRungAtATime(t *testing.T) {
	m := newTestManager(5) // ladder Poss1,Poss2,Tentative1,Tentative2,Firm; firm threshold = 4
	tr := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	tr.HitCount = 2
	m.PromoteAll(0.1)
	if tr.CurrentState != Poss2 {
		t.Fatalf("expected advance by exactly one rung to Poss2, got %s", tr.CurrentState)
	}
}

func TestManagerPromoteAllNeverRegresses(t *testing.T) {
	m := newTestManager(3)
	tr := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	tr.HitCount = 5
	m.PromoteAll(0.1)
	if tr.CurrentState != Firm {
		t.Fatal("expected promotion to Firm")
	}
	tr.HitCount = 0
	m.PromoteAll(0.2)
	if tr.CurrentState != Firm {
		t.Fatalf("promotion must never regress, got %s", tr.CurrentState)
	}
}

func TestManagerCorrelationCheckBindsWithinThreshold(t *testing.T) {
	m := newTestManager(3)
	m.Birth(NewMeasurement(1000, 0, 0, 0, 50))
	candidate := NewMeasurement(1050, 0, 0, 0.01, 60)
	tr, ok := m.CorrelationCheck(candidate)
	if !ok {
		t.Fatal("expected correlation check to bind within threshold")
	}
	if tr.ID != 0 {
		t.Fatalf("expected track 0 to win, got %d", tr.ID)
	}
}

func TestManagerCorrelationCheckRejectsBeyondThreshold(t *testing.T) {
	m := newTestManager(3)
	m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	farMeas := NewMeasurement(5000, 0, 0, 0.01, 0)
	if _, ok := m.CorrelationCheck(farMeas); ok {
		t.Fatal("expected no track to correlate beyond range threshold")
	}
}

func TestManagerPruneTimedOutFreesSlotDescendingOrder(t *testing.T) {
	m := newTestManager(3)
	m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	removed := m.PruneTimedOut(10, 1)
	if len(removed) != 2 {
		t.Fatalf("expected both tracks pruned, got %d", len(removed))
	}
	if removed[0] != 1 || removed[1] != 0 {
		t.Fatalf("expected pruning in descending ID order [1 0], got %v", removed)
	}
	if m.SlotOccupied(0) || m.SlotOccupied(1) {
		t.Fatal("expected both slots freed after pruning")
	}
	if len(m.LiveTrackIDs()) != 0 {
		t.Fatalf("expected no live tracks after pruning, got %v", m.LiveTrackIDs())
	}
}

func TestManagerIngestTentativeDerivesVelocity(t *testing.T) {
	m := newTestManager(3)
	tr := m.Birth(NewMeasurement(0, 0, 90, 0, 0)) // straight up, x=y=0, z=r
	tr.CurrentState = Tentative1
	ok := m.Ingest(tr, NewMeasurement(10, 0, 90, 1.0, 0)) // z moves from 0 to 10 over 1s
	if !ok {
		t.Fatal("expected successful ingest")
	}
	vz := tr.Ingests[len(tr.Ingests)-1].Snapshot.Sf.AtVec(5)
	if vz < 5 || vz > 15 {
		t.Fatalf("expected finite-difference vz near 10, got %f", vz)
	}
}
