package track

import (
	"errors"
	"strings"
	"testing"
)

func TestFormMeasurementGroupsSplitsOnGap(t *testing.T) {
	ms := []Measurement{
		NewMeasurement(100, 10, 5, 0.000, 0),
		NewMeasurement(101, 10, 5, 0.020, 0),
		NewMeasurement(102, 10, 5, 0.049, 0),
		NewMeasurement(103, 10, 5, 0.200, 0),
	}
	groups := FormMeasurementGroups(ms, 0.050)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	if len(groups[0].Measurements) != 3 {
		t.Fatalf("expected first group to hold 3 measurements, got %d", len(groups[0].Measurements))
	}
	if len(groups[1].Measurements) != 1 {
		t.Fatalf("expected second group to hold 1 measurement, got %d", len(groups[1].Measurements))
	}
}

func TestFormMeasurementGroupsEmpty(t *testing.T) {
	if groups := FormMeasurementGroups(nil, 0.050); groups != nil {
		t.Fatalf("expected nil groups for empty input, got %v", groups)
	}
}

func TestLoadMeasurementsCSVParsesRows(t *testing.T) {
	csv := "MR,MA,ME,MT,MD\n1000,45,10,0.0,5\n1010,46,10,0.1,5\n"
	measurements, errs := parseMeasurementsCSV(strings.NewReader(csv))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(measurements) != 2 {
		t.Fatalf("expected 2 measurements, got %d", len(measurements))
	}
	if measurements[0].Range != 1000 {
		t.Fatalf("unexpected range %f", measurements[0].Range)
	}
}

func TestLoadMeasurementsCSVFlagsNonMonotonicTime(t *testing.T) {
	csv := "MR,MA,ME,MT,MD\n1000,45,10,1.0,5\n1010,46,10,0.5,5\n"
	measurements, errs := parseMeasurementsCSV(strings.NewReader(csv))
	if len(measurements) != 1 {
		t.Fatalf("expected the out-of-order row to be skipped, got %d measurements", len(measurements))
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one row error, got %d", len(errs))
	}
	var inputErr *InputError
	if !errors.As(errs[0], &inputErr) {
		t.Fatalf("expected an *InputError, got %T", errs[0])
	}
	if inputErr.Index != 1 {
		t.Fatalf("expected error at row index 1, got %d", inputErr.Index)
	}
}

func TestLoadMeasurementsCSVFlagsMalformedRow(t *testing.T) {
	csv := "MR,MA,ME,MT,MD\nnotanumber,45,10,0.0,5\n"
	measurements, errs := parseMeasurementsCSV(strings.NewReader(csv))
	if len(measurements) != 0 {
		t.Fatalf("expected no measurements parsed, got %d", len(measurements))
	}
	if len(errs) != 1 {
		t.Fatalf("expected exactly one row error, got %d", len(errs))
	}
}
