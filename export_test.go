package track

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
)

func TestWriteDetailedLogHeaderAndCorrelationMapping(t *testing.T) {
	rows := []DetailedLogRow{
		{
			Time: 0.1, MeasurementX: 1, MeasurementY: 2, MeasurementZ: 3,
			CurrentState: Poss1, CorrelationOutput: true, AssociatedTrackID: 0,
			AssociationType: LogSingle,
		},
		{
			Time: 0.2, MeasurementX: 4, MeasurementY: 5, MeasurementZ: 6,
			CurrentState: Poss1, CorrelationOutput: false, AssociatedTrackID: -1,
			AssociationType: LogSingle,
		},
	}
	var buf bytes.Buffer
	if err := WriteDetailedLog(&buf, rows); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %s", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][0] != "Time" {
		t.Fatalf("expected header row first, got %v", records[0])
	}
	if records[1][5] != "Yes" || records[1][6] != "0" {
		t.Fatalf("expected correlated row to show Yes/0, got %v", records[1])
	}
	if records[2][5] != "No" || records[2][6] != "-" {
		t.Fatalf("expected dropped row with no track to show No/-, got %v", records[2])
	}
}

func TestWriteTrackSummaryRecordsStateTimesAndPositions(t *testing.T) {
	m := NewManager(3, CV, 20, 100, 100)
	tr := m.Birth(NewMeasurement(1000, 0, 0, 0, 0))
	tr.HitCount = 2
	m.PromoteAll(0.1)

	var buf bytes.Buffer
	if err := WriteTrackSummary(&buf, m.Snapshots()); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %s", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d", len(records))
	}
	header := records[0]
	if header[0] != "TrackID" || header[len(header)-1] != "PP" {
		t.Fatalf("unexpected header: %v", header)
	}
	statusIdx := indexOfHeader(header, "TrackStatus")
	if statusIdx < 0 {
		t.Fatalf("expected a TrackStatus column, got %v", header)
	}
	row := records[1]
	if row[0] != "0" {
		t.Fatalf("expected track ID 0, got %s", row[0])
	}
	if row[1] != "Firm" {
		t.Fatalf("expected current state Firm, got %s", row[1])
	}
	if row[statusIdx] != "Occupied" {
		t.Fatalf("expected a live track's slot to report Occupied, got %s", row[statusIdx])
	}
	firmTimeIdx := indexOfHeader(header, "FirmTime")
	if firmTimeIdx < 0 || row[firmTimeIdx] != "0.1" {
		t.Fatalf("expected FirmTime 0.1, got header %v row %v", header, row)
	}
	poss1MeasurementsIdx := indexOfHeader(header, "Poss1Measurements")
	if poss1MeasurementsIdx < 0 || row[poss1MeasurementsIdx] == "" {
		t.Fatalf("expected a non-empty Poss1Measurements column, got header %v row %v", header, row)
	}
	for _, col := range []string{"SF", "SP", "PF", "PP"} {
		idx := indexOfHeader(header, col)
		if idx < 0 || row[idx] == "" {
			t.Fatalf("expected a non-empty %s history column, got header %v row %v", col, header, row)
		}
	}
}

func indexOfHeader(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func TestWriteTrackSummaryEmptySnapshots(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTrackSummary(&buf, nil); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %s", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected only the header row, got %d", len(records))
	}
}
