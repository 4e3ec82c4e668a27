package track

import (
	"context"
	"testing"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.TrackMode = 3
	return cfg
}

// straightLineMeasurements generates n CV-consistent detections along a
// straight radial line, one per 0.1s, matching scenario S1 in spec.md §8.
func straightLineMeasurements(n int) []Measurement {
	ms := make([]Measurement, n)
	for i := 0; i < n; i++ {
		t := float64(i) * 0.1
		r := 1000 + 50*t
		ms[i] = NewMeasurement(r, 30, 10, t, 0)
	}
	return ms
}

func TestOrchestratorSingleTargetReachesFirm(t *testing.T) {
	o := NewOrchestrator(testConfig())
	result, err := o.Run(context.Background(), straightLineMeasurements(10))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(result.Tracks) != 1 {
		t.Fatalf("expected exactly one track, got %d", len(result.Tracks))
	}
	tr := result.Tracks[0]
	if tr.CurrentState != Firm {
		t.Fatalf("expected track to reach Firm after 10 ingests, got %s", tr.CurrentState)
	}
	if _, ok := tr.StateTransitionTimes[Poss1]; !ok {
		t.Fatal("expected a recorded Poss1 transition time")
	}
}

func TestOrchestratorBirthOnlyGroup(t *testing.T) {
	o := NewOrchestrator(testConfig())
	group := []Measurement{
		NewMeasurement(1000, 0, 0, 0, 0),
		NewMeasurement(50000, 180, 0, 0, 0),
	}
	result, err := o.Run(context.Background(), group)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(result.Tracks) != 2 {
		t.Fatalf("expected two births, got %d tracks", len(result.Tracks))
	}
	for _, row := range result.DetailedLog {
		if row.AssociationType != LogNew || row.CorrelationOutput {
			t.Fatalf("expected every row to be a birth with CorrelationOutput=No, got %+v", row)
		}
	}
}

func TestOrchestratorStopRunCancelsCooperatively(t *testing.T) {
	o := NewOrchestrator(testConfig())
	o.StopRun()
	result, err := o.Run(context.Background(), straightLineMeasurements(10))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !result.Cancelled {
		t.Fatal("expected the run to report cancellation")
	}
	if len(result.DetailedLog) != 0 {
		t.Fatalf("expected no groups processed after an immediate stop, got %d rows", len(result.DetailedLog))
	}
}

func TestOrchestratorMunkresRecordsBestReportSelected(t *testing.T) {
	cfg := testConfig()
	cfg.AssociationType = Munkres
	o := NewOrchestrator(cfg)

	measurements := []Measurement{
		NewMeasurement(1000, 0, 0, 0, 0),      // births track A near (0,1000,0)
		NewMeasurement(50000, 180, 0, 1.0, 0), // births track B near (0,-50000,0)
		NewMeasurement(50000, 180, 0, 2.0, 0), // report near track B, offered first
		NewMeasurement(1000, 0, 0, 2.01, 0),   // report near track A, offered second
	}
	result, err := o.Run(context.Background(), measurements)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	var sawTrackA, sawTrackB bool
	for _, row := range result.DetailedLog {
		if row.AssociationType != LogMunkres {
			continue
		}
		switch row.AssociatedTrackID {
		case 0:
			sawTrackA = true
			if row.BestReportSelected != 1 {
				t.Fatalf("expected track A to be matched to report index 1, got %d", row.BestReportSelected)
			}
		case 1:
			sawTrackB = true
			if row.BestReportSelected != 0 {
				t.Fatalf("expected track B to be matched to report index 0, got %d", row.BestReportSelected)
			}
		}
	}
	if !sawTrackA || !sawTrackB {
		t.Fatalf("expected a Munkres row for both tracks, got %+v", result.DetailedLog)
	}
}

func TestOrchestratorContextCancellation(t *testing.T) {
	o := NewOrchestrator(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := o.Run(ctx, straightLineMeasurements(10))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !result.Cancelled {
		t.Fatal("expected the run to report cancellation via context")
	}
}
