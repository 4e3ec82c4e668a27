package track

import (
	"context"
	"fmt"
	"os"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/mat"
)

// Orchestrator drives the manager over a measurement stream, one group at a
// time, per spec.md §4.7. Its cooperative-cancellation shape mirrors the
// teacher's Mission.Propagate / StopPropagation / Stop pattern: a buffered
// stop channel consulted between groups rather than a goroutine killed
// mid-flight.
type Orchestrator struct {
	Config  Config
	Manager *Manager

	stopChan  chan bool
	lastCheck float64
	births    int
	drops     int

	logger kitlog.Logger
}

// NewOrchestrator builds an Orchestrator from a validated Config.
func NewOrchestrator(cfg Config) *Orchestrator {
	mgr := NewManager(cfg.TrackMode, cfg.FilterOption, cfg.PlantNoise, cfg.RangeThreshold, cfg.DopplerThreshold)
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	klog = kitlog.With(klog, "subsys", "orchestrator")
	return &Orchestrator{
		Config:   cfg,
		Manager:  mgr,
		stopChan: make(chan bool, 1),
		logger:   klog,
	}
}

// StopRun requests cooperative cancellation at the next group boundary,
// mirroring Mission.StopPropagation.
func (o *Orchestrator) StopRun() {
	o.stopChan <- true
}

func (o *Orchestrator) stopRequested() bool {
	select {
	case <-o.stopChan:
		return true
	default:
		return false
	}
}

// Stats accumulates run-wide counters, logged at end-of-stream, mirroring
// the teacher's Mission.Propagate end-of-run summary line.
type Stats struct {
	Births     int
	Promotions int
	Deletions  int
	Drops      int
}

// RunResult is the return value of a full stream run: the track snapshots
// at end-of-stream (or cancellation point) and the detailed log rows
// accumulated along the way, per spec.md §6.
type RunResult struct {
	Tracks      []Snapshot
	DetailedLog []DetailedLogRow
	Stats       Stats
	Cancelled   bool
}

// Run processes measurements (already parsed, arrival-ordered) to
// completion, until StopRun is called, or until ctx is done, per spec.md
// §4.7's per-group pipeline: timeout sweep, correlation-check or
// association, filter updates, births, promotion sweep, log emission. The
// context check is an idiomatic addition beyond the teacher's channel-only
// cancellation; both are consulted at the same group boundary.
func (o *Orchestrator) Run(ctx context.Context, measurements []Measurement) (*RunResult, error) {
	groups := FormMeasurementGroups(measurements, o.Config.MaxTimeDiff)
	result := &RunResult{}

	for _, group := range groups {
		select {
		case <-ctx.Done():
			result.Cancelled = true
		default:
		}
		if result.Cancelled || o.stopRequested() {
			result.Cancelled = true
			break
		}

		now := group.BaseTime()
		result.Stats.Deletions += len(o.maybeSweepTimeouts(now))

		birthsBefore, dropsBefore := o.births, o.drops
		rows, err := o.processGroup(group)
		if err != nil {
			return nil, fmt.Errorf("processing group at t=%g: %w", now, err)
		}
		result.Stats.Births += o.births - birthsBefore
		result.Stats.Drops += o.drops - dropsBefore
		result.DetailedLog = append(result.DetailedLog, rows...)

		result.Stats.Promotions += o.Manager.PromoteAll(now)
	}

	result.Tracks = o.Manager.Snapshots()
	o.logger.Log("level", "notice", "msg", "run complete",
		"births", result.Stats.Births, "promotions", result.Stats.Promotions,
		"deletions", result.Stats.Deletions, "drops", result.Stats.Drops, "cancelled", result.Cancelled)
	return result, nil
}

func (o *Orchestrator) maybeSweepTimeouts(now float64) []int {
	if now-o.lastCheck < o.Config.CheckInterval {
		return nil
	}
	o.lastCheck = now
	return o.Manager.PruneTimedOut(now, o.Config.TrackTimeout)
}

func (o *Orchestrator) processGroup(group MeasurementGroup) ([]DetailedLogRow, error) {
	if len(group.Measurements) == 1 {
		return o.processSingle(group.Measurements[0]), nil
	}
	return o.processMultiple(group), nil
}

func (o *Orchestrator) processSingle(meas Measurement) []DetailedLogRow {
	row := DetailedLogRow{
		Time:         meas.Time,
		MeasurementX: meas.X,
		MeasurementY: meas.Y,
		MeasurementZ: meas.Z,
	}
	if t, ok := o.Manager.CorrelationCheck(meas); ok {
		if ok := o.Manager.Ingest(t, meas); !ok {
			o.drops++
			row.CorrelationOutput = false
			row.AssociatedTrackID = -1
			row.AssociationType = LogSingle
			return []DetailedLogRow{row}
		}
		row.CorrelationOutput = true
		row.AssociatedTrackID = t.ID
		pos := t.FilteredPosition()
		row.AssociatedX, row.AssociatedY, row.AssociatedZ = pos[0], pos[1], pos[2]
		row.AssociationType = LogSingle
		row.CurrentState = t.CurrentState
	} else {
		nt := o.Manager.Birth(meas)
		o.births++
		row.CorrelationOutput = false
		row.AssociatedTrackID = nt.ID
		pos := nt.FilteredPosition()
		row.AssociatedX, row.AssociatedY, row.AssociatedZ = pos[0], pos[1], pos[2]
		row.AssociationType = LogNew
		row.CurrentState = nt.CurrentState
	}
	return []DetailedLogRow{row}
}

func (o *Orchestrator) processMultiple(group MeasurementGroup) []DetailedLogRow {
	ids := o.Manager.LiveTrackIDs()
	o.Manager.PredictAll(group.BaseTime())

	trackPositions := make([][3]float64, len(ids))
	for i, id := range ids {
		trackPositions[i] = o.Manager.Track(id).PredictedPosition()
	}
	reports := make([][3]float64, len(group.Measurements))
	for i, m := range group.Measurements {
		reports[i] = m.Cartesian()
	}

	var rows []DetailedLogRow
	matchedReport := make(map[int]bool, len(reports))

	if len(ids) == 0 {
		for _, m := range group.Measurements {
			rows = append(rows, o.birthRow(m))
		}
		return rows
	}

	chol, ok := o.sharedCholesky(ids[0])
	if !ok {
		for _, m := range group.Measurements {
			rows = append(rows, o.birthRow(m))
		}
		return rows
	}

	switch o.Config.AssociationType {
	case Munkres:
		hits := PerformMunkres(trackPositions, reports, chol)
		for _, h := range hits {
			matchedReport[h.ReportIdx] = true
			rows = append(rows, o.applyHit(ids[h.TrackIdx], group.Measurements[h.ReportIdx], h.ReportIdx, LogMunkres, 0, 0, 0))
		}
	default:
		edges := BuildGatedEdges(trackPositions, reports, chol, o.Config.GateThreshold)
		clusters := FormClusters(len(ids), len(reports), edges)
		jr := PerformJPDA(clusters, trackPositions, reports, chol)
		for ci, hit := range jr.BestPerCluster {
			matchedReport[hit.ReportIdx] = true
			hyps := jr.Hypotheses[ci]
			prob := 0.0
			for _, h := range hyps {
				if h.TrackIdx == hit.TrackIdx && h.ReportIdx == hit.ReportIdx {
					prob = h.Probability
					break
				}
			}
			rows = append(rows, o.applyHit(ids[hit.TrackIdx], group.Measurements[hit.ReportIdx], hit.ReportIdx, LogJPDA,
				len(clusters), len(hyps), prob))
		}
	}

	for j, m := range group.Measurements {
		if !matchedReport[j] {
			rows = append(rows, o.birthRow(m))
		}
	}
	return rows
}

// sharedCholesky picks the first live track's innovation covariance
// Cholesky factor as the group-wide S used for gating/cost computation,
// since every track shares the same H/R by construction (spec.md §4.4 step
// 1 computes one S per group, not per track).
func (o *Orchestrator) sharedCholesky(anyTrackID int) (*mat.Cholesky, bool) {
	return o.Manager.InnovationCovarianceCholesky(anyTrackID)
}

func (o *Orchestrator) applyHit(trackID int, meas Measurement, reportIdx int, kind LogAssociationKind, clusters, hyps int, prob float64) DetailedLogRow {
	t := o.Manager.Track(trackID)
	row := DetailedLogRow{
		Time:                meas.Time,
		MeasurementX:        meas.X,
		MeasurementY:        meas.Y,
		MeasurementZ:        meas.Z,
		CorrelationOutput:   true,
		AssociatedTrackID:   trackID,
		AssociationType:     kind,
		ClustersFormed:      clusters,
		HypothesesGenerated: hyps,
		ProbabilityOfHypothesis: prob,
		BestReportSelected:  reportIdx,
	}
	if !o.Manager.Ingest(t, meas) {
		o.drops++
		row.AssociatedTrackID = -1
		return row
	}
	pos := t.FilteredPosition()
	row.AssociatedX, row.AssociatedY, row.AssociatedZ = pos[0], pos[1], pos[2]
	row.CurrentState = t.CurrentState
	return row
}

func (o *Orchestrator) birthRow(m Measurement) DetailedLogRow {
	nt := o.Manager.Birth(m)
	o.births++
	pos := nt.FilteredPosition()
	return DetailedLogRow{
		Time:              m.Time,
		MeasurementX:      m.X,
		MeasurementY:      m.Y,
		MeasurementZ:      m.Z,
		CorrelationOutput: false,
		AssociatedTrackID: nt.ID,
		AssociatedX:       pos[0],
		AssociatedY:       pos[1],
		AssociatedZ:       pos[2],
		AssociationType:   LogNew,
		CurrentState:      nt.CurrentState,
	}
}
