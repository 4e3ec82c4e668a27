package track

import (
	"fmt"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/mat"
)

// LadderState is a tagged enum over one rung of a track's progression
// ladder, per spec.md §4.6. The zero value is the ladder's first rung.
type LadderState uint8

const (
	Poss1 LadderState = iota
	Poss2
	Tentative1
	Tentative2
	Tentative3
	Tentative4
	Firm
)

func (s LadderState) String() string {
	switch s {
	case Poss1:
		return "Poss1"
	case Poss2:
		return "Poss2"
	case Tentative1:
		return "Tentative1"
	case Tentative2:
		return "Tentative2"
	case Tentative3:
		return "Tentative3"
	case Tentative4:
		return "Tentative4"
	case Firm:
		return "Firm"
	default:
		return "Unknown"
	}
}

// category classifies a rung into one of the three per-ingest update
// policies named in spec.md §4.6: non-Firm Poss* rungs behave like Poss1,
// non-Firm Tentative* rungs behave like Tentative1, and Firm is Firm. This
// resolves the open question in spec.md §9 by treating every intermediate
// rung as falling back to its family's base behavior.
type category uint8

const (
	categoryPoss category = iota
	categoryTentative
	categoryFirm
)

func (s LadderState) category() category {
	switch s {
	case Poss1, Poss2:
		return categoryPoss
	case Tentative1, Tentative2, Tentative3, Tentative4:
		return categoryTentative
	default:
		return categoryFirm
	}
}

// Ladder is an ordered progression of rungs selected by track_mode.
type Ladder []LadderState

var (
	ladder3 = Ladder{Poss1, Tentative1, Firm}
	ladder5 = Ladder{Poss1, Poss2, Tentative1, Tentative2, Firm}
	ladder7 = Ladder{Poss1, Poss2, Tentative1, Tentative2, Tentative3, Tentative4, Firm}
)

// LadderFor returns the progression ladder for a track_mode ∈ {3,5,7} and
// reports whether mode was recognized. Unknown modes are a ConfigError at
// the caller (config.go), not here.
func LadderFor(mode int) (Ladder, bool) {
	switch mode {
	case 3:
		return ladder3, true
	case 5:
		return ladder5, true
	case 7:
		return ladder7, true
	default:
		return nil, false
	}
}

// firmThreshold is the hit_count at which a track is promoted directly to
// Firm regardless of its current rung, per spec.md §4.6. It equals the
// ladder's final index for every mode, i.e. the number of non-Firm rungs.
func (l Ladder) firmThreshold() int {
	return len(l) - 1
}

func (l Ladder) indexOf(s LadderState) int {
	for i, rung := range l {
		if rung == s {
			return i
		}
	}
	return -1
}

// Ingest is one (measurement, state-at-ingest) pair plus the filter
// snapshot recorded alongside it, per spec.md §3's Track data model.
type Ingest struct {
	Measurement Measurement
	State       LadderState
	Snapshot    FilterState
}

// Track is a persistent tracked target owned exclusively by the Manager.
// External consumers receive copies of Snapshot(), never this struct
// directly, per spec.md §3's read-only-snapshot invariant.
type Track struct {
	ID           int
	Ladder       Ladder
	CurrentState LadderState
	HitCount     int
	MissCount    int

	StateTransitionTimes map[LadderState]float64

	Ingests []Ingest
	filter  *Filter
}

// LastMeasurement returns the most recently ingested measurement.
func (t *Track) LastMeasurement() Measurement {
	return t.Ingests[len(t.Ingests)-1].Measurement
}

// PredictedPosition returns the filter's predicted position as of the last
// Predict call.
func (t *Track) PredictedPosition() [3]float64 {
	return t.filter.State.PredictedPosition3()
}

// FilteredPosition returns the filter's filtered position as of the last
// Update or re-initialization.
func (t *Track) FilteredPosition() [3]float64 {
	return t.filter.State.Position3()
}

// Snapshot is the immutable, externally visible view of a Track at a group
// boundary, per spec.md §5's observer contract.
type Snapshot struct {
	ID                   int
	CurrentState         LadderState
	HitCount             int
	MissCount            int
	StateTransitionTimes map[LadderState]float64
	Ingests              []Ingest
	SlotOccupied         bool
}

// Snapshot copies out a Track's externally visible state. SlotOccupied is
// always true, since only a live track produces a Snapshot; the field is
// not updated afterwards, so a Snapshot held past PruneTimedOut does not
// show that its slot was freed. Manager.SlotOccupied reports the current
// slot state.
func (t *Track) Snapshot() Snapshot {
	times := make(map[LadderState]float64, len(t.StateTransitionTimes))
	for k, v := range t.StateTransitionTimes {
		times[k] = v
	}
	ingests := make([]Ingest, len(t.Ingests))
	copy(ingests, t.Ingests)
	return Snapshot{
		ID:                   t.ID,
		CurrentState:         t.CurrentState,
		HitCount:             t.HitCount,
		MissCount:            t.MissCount,
		StateTransitionTimes: times,
		Ingests:              ingests,
		SlotOccupied:         true,
	}
}

// SlotOccupied reports whether the slot backing id is currently occupied,
// per spec.md §6's "Track Status" summary column — true for a live track,
// false once PruneTimedOut has freed its slot.
func (m *Manager) SlotOccupied(id int) bool {
	for i := range m.slots {
		if m.slots[i].ID == id {
			return m.slots[i].State == slotOccupied
		}
	}
	return false
}

// slotState is a TrackSlot's occupancy, per spec.md §3.
type slotState uint8

const (
	slotFree slotState = iota
	slotOccupied
)

// TrackSlot is a registry entry enabling ID recycling.
type TrackSlot struct {
	ID    int
	State slotState
}

// Manager owns the track collection and slot registry exclusively, per
// spec.md §5. It is not safe for concurrent use; the orchestrator is the
// single caller between group boundaries, mirroring the teacher's
// single-threaded Mission/OrbitEstimate ownership model.
type Manager struct {
	Variant      FilterVariant
	PlantNoise   float64
	ladder       Ladder
	RangeThresh  float64
	DopplerThresh float64

	slots  []TrackSlot
	tracks map[int]*Track

	logger kitlog.Logger
}

// NewManager constructs a Manager for the given track_mode (one of 3,5,7)
// and filter variant. Callers validate trackMode via LadderFor before
// calling; NewManager panics on an unrecognized mode since config.go's
// ConfigError has already ruled this out by the time a Manager is built.
func NewManager(trackMode int, variant FilterVariant, plantNoise, rangeThreshold, dopplerThreshold float64) *Manager {
	ladder, ok := LadderFor(trackMode)
	if !ok {
		panic(fmt.Sprintf("track: unrecognized track_mode %d", trackMode))
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "component", "manager", "track_mode", trackMode)
	return &Manager{
		Variant:       variant,
		PlantNoise:    plantNoise,
		ladder:        ladder,
		RangeThresh:   rangeThreshold,
		DopplerThresh: dopplerThreshold,
		tracks:        make(map[int]*Track),
		logger:        klog,
	}
}

// LiveTrackIDs returns live track IDs in ascending order, the iteration
// order used throughout the orchestrator for determinism.
func (m *Manager) LiveTrackIDs() []int {
	ids := make([]int, 0, len(m.tracks))
	for id := range m.tracks {
		ids = append(ids, id)
	}
	// ascending insertion sort is fine at this scale and keeps the manager
	// free of a sort import for a handful of live tracks per group.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Track returns the live track with the given ID, or nil.
func (m *Manager) Track(id int) *Track {
	return m.tracks[id]
}

// PredictAll advances every live track's filter to time now, each using its
// own last-measurement time to compute dt (tracks may have been updated at
// different times in prior groups).
func (m *Manager) PredictAll(now float64) {
	for _, id := range m.LiveTrackIDs() {
		t := m.tracks[id]
		dt := now - t.LastMeasurement().Time
		if dt > 0 {
			t.filter.Predict(dt)
		}
	}
}

// InnovationCovarianceCholesky exposes the gating-time Cholesky
// factorization of S for a live track.
func (m *Manager) InnovationCovarianceCholesky(id int) (*mat.Cholesky, bool) {
	return m.tracks[id].filter.InnovationCovarianceCholesky()
}

// allocateSlot returns the lowest-index free slot, creating a new one if
// none is free, per spec.md §4.6's birth rule.
func (m *Manager) allocateSlot() int {
	for i := range m.slots {
		if m.slots[i].State == slotFree {
			m.slots[i].State = slotOccupied
			return m.slots[i].ID
		}
	}
	id := len(m.slots)
	m.slots = append(m.slots, TrackSlot{ID: id, State: slotOccupied})
	return id
}

func (m *Manager) freeSlot(id int) {
	for i := range m.slots {
		if m.slots[i].ID == id {
			m.slots[i].State = slotFree
			return
		}
	}
}

// Birth allocates a TrackSlot, seeds a new track at Poss1, and initializes
// its filter at the measurement's Cartesian position with zero velocity,
// per spec.md §4.6.
func (m *Manager) Birth(meas Measurement) *Track {
	id := m.allocateSlot()
	f := NewFilter(m.Variant, m.PlantNoise)
	f.TrackID = id
	f.Initialize(meas.Cartesian())

	t := &Track{
		ID:                   id,
		Ladder:               m.ladder,
		CurrentState:         Poss1,
		HitCount:             1,
		StateTransitionTimes: map[LadderState]float64{Poss1: meas.Time},
		filter:               f,
	}
	t.Ingests = append(t.Ingests, Ingest{Measurement: meas, State: Poss1, Snapshot: f.State.Clone()})
	m.tracks[id] = t
	m.logger.Log("level", "info", "msg", "track birth", "track_id", id, "time", meas.Time)
	return t
}

// CorrelationCheck implements spec.md §4.6's single-measurement-group
// binding rule: the first live track (in ascending ID order) whose range
// and doppler gap to meas are both below threshold wins.
func (m *Manager) CorrelationCheck(meas Measurement) (*Track, bool) {
	for _, id := range m.LiveTrackIDs() {
		t := m.tracks[id]
		last := t.LastMeasurement()
		rangeGap := abs(meas.Range - last.Range)
		dopplerGap := abs(meas.Doppler - last.Doppler)
		if rangeGap < m.RangeThresh && dopplerGap < m.DopplerThresh {
			return t, true
		}
	}
	return nil, false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// Ingest applies spec.md §4.6's per-ingest state-conditional update for one
// (track, measurement) pairing, then appends the resulting ingest record
// and advances hit_count. It returns false, appending nothing and leaving
// hit_count unchanged, if the filter reported a numerical error, per
// spec.md §7's recovery policy.
func (m *Manager) Ingest(t *Track, meas Measurement) bool {
	switch t.CurrentState.category() {
	case categoryPoss:
		t.filter.Initialize(meas.Cartesian())
	case categoryTentative:
		prev := t.LastMeasurement()
		dt := meas.Time - prev.Time
		var vel [3]float64
		if dt > 0 {
			pp := prev.Cartesian()
			cp := meas.Cartesian()
			vel = [3]float64{(cp[0] - pp[0]) / dt, (cp[1] - pp[1]) / dt, (cp[2] - pp[2]) / dt}
		}
		t.filter.InitializeWithVelocity(meas.Cartesian(), vel)
	case categoryFirm:
		prev := t.LastMeasurement()
		dt := meas.Time - prev.Time
		if dt > 0 {
			t.filter.Predict(dt)
		}
		if !t.filter.Update(meas.Cartesian()) {
			m.logger.Log("level", "warn", "msg", "numerical error during update, skipping ingest", "track_id", t.ID)
			return false
		}
	}
	t.Ingests = append(t.Ingests, Ingest{Measurement: meas, State: t.CurrentState, Snapshot: t.filter.State.Clone()})
	t.HitCount++
	return true
}

// PromoteAll applies spec.md §4.6/§9's promotion rule to every live track: a
// track whose hit_count has reached the ladder's firm threshold jumps
// directly to Firm; otherwise it advances at most one rung if hit_count has
// caught up to the next rung's index. Regression never occurs. It returns
// the number of tracks promoted this sweep.
func (m *Manager) PromoteAll(now float64) int {
	threshold := m.ladder.firmThreshold()
	promoted := 0
	for _, id := range m.LiveTrackIDs() {
		t := m.tracks[id]
		if t.CurrentState == Firm {
			continue
		}
		if t.HitCount >= threshold {
			m.transition(t, Firm, now)
			promoted++
			continue
		}
		curIdx := t.Ladder.indexOf(t.CurrentState)
		if curIdx < len(t.Ladder)-1 && t.HitCount >= curIdx+1 {
			m.transition(t, t.Ladder[curIdx+1], now)
			promoted++
		}
	}
	return promoted
}

func (m *Manager) transition(t *Track, next LadderState, now float64) {
	t.CurrentState = next
	if _, seen := t.StateTransitionTimes[next]; !seen {
		t.StateTransitionTimes[next] = now
	}
	m.logger.Log("level", "info", "msg", "track promoted", "track_id", t.ID, "state", next.String(), "time", now)
}

// PruneTimedOut removes every live track whose last measurement time is
// older than now-timeout, freeing its slot and deleting its bookkeeping
// entries, per spec.md §4.6. Iteration for deletion walks descending ID
// order so slot-table indices already visited are unaffected by removal.
func (m *Manager) PruneTimedOut(now, timeout float64) []int {
	ids := m.LiveTrackIDs()
	var removed []int
	for i := len(ids) - 1; i >= 0; i-- {
		id := ids[i]
		t := m.tracks[id]
		if now-t.LastMeasurement().Time > timeout {
			delete(m.tracks, id)
			m.freeSlot(id)
			removed = append(removed, id)
			m.logger.Log("level", "info", "msg", "track pruned by timeout", "track_id", id, "time", now)
		}
	}
	return removed
}

// Snapshots returns a read-only view of every live track, ascending by ID.
func (m *Manager) Snapshots() []Snapshot {
	ids := m.LiveTrackIDs()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.tracks[id].Snapshot())
	}
	return out
}
