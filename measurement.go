package track

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Measurement is an immutable spherical radar detection with its derived
// Cartesian position, per spec.md §3.
type Measurement struct {
	Range     float64 // r
	Azimuth   float64 // az, degrees
	Elevation float64 // el, degrees
	Time      float64 // t, seconds
	Doppler   float64 // d

	X, Y, Z float64 // derived Cartesian position
}

// NewMeasurement builds a Measurement, deriving its Cartesian position via
// Sph2Cart.
func NewMeasurement(r, az, el, t, doppler float64) Measurement {
	x, y, z := Sph2Cart(az, el, r)
	return Measurement{Range: r, Azimuth: az, Elevation: el, Time: t, Doppler: doppler, X: x, Y: y, Z: z}
}

// Cartesian returns the measurement's derived position as a 3-tuple.
func (m Measurement) Cartesian() [3]float64 {
	return [3]float64{m.X, m.Y, m.Z}
}

// MeasurementGroup is an ordered nonempty sequence of measurements whose
// timestamps span at most MaxTimeDiff from the group's first timestamp.
type MeasurementGroup struct {
	Measurements []Measurement
}

// BaseTime returns the timestamp of the group's first measurement.
func (g MeasurementGroup) BaseTime() float64 {
	return g.Measurements[0].Time
}

// FormMeasurementGroups partitions an arrival-ordered measurement stream
// into groups per spec.md §4.3: a single pass, order-preserving, with
// groups never overlapping and never exceeding maxTimeDiff in span.
func FormMeasurementGroups(measurements []Measurement, maxTimeDiff float64) []MeasurementGroup {
	if len(measurements) == 0 {
		return nil
	}
	groups := make([]MeasurementGroup, 0)
	baseTime := measurements[0].Time
	current := make([]Measurement, 0, 1)

	for _, m := range measurements {
		if m.Time-baseTime <= maxTimeDiff {
			current = append(current, m)
		} else {
			groups = append(groups, MeasurementGroup{Measurements: current})
			current = []Measurement{m}
			baseTime = m.Time
		}
	}
	if len(current) > 0 {
		groups = append(groups, MeasurementGroup{Measurements: current})
	}
	return groups
}

// LoadMeasurementsCSV reads (MR, MA, ME, MT, MD) rows from path, skipping
// the header row. It returns every successfully parsed measurement plus a
// slice of per-row errors (malformed fields or non-monotonic time),
// letting the caller choose fail-fast or skip-with-warn per spec.md §7.
func LoadMeasurementsCSV(path string) ([]Measurement, []error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, []error{fmt.Errorf("opening measurement stream: %w", err)}
	}
	defer f.Close()
	return parseMeasurementsCSV(f)
}

func parseMeasurementsCSV(r io.Reader) ([]Measurement, []error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		measurements []Measurement
		errs         []error
		lastTime     float64
		haveLast     bool
		idx          = -1
	)

	if _, err := reader.Read(); err != nil { // header
		if err == io.EOF {
			return nil, nil
		}
		return nil, []error{&InputError{Index: 0, Err: fmt.Errorf("reading header: %w", err)}}
	}

	for {
		idx++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			errs = append(errs, &InputError{Index: idx, Err: err})
			continue
		}
		if len(row) < 5 {
			errs = append(errs, &InputError{Index: idx, Err: fmt.Errorf("expected 5 fields, got %d", len(row))})
			continue
		}
		fields := make([]float64, 5)
		var parseErr error
		for i := 0; i < 5; i++ {
			fields[i], parseErr = strconv.ParseFloat(row[i], 64)
			if parseErr != nil {
				break
			}
		}
		if parseErr != nil {
			errs = append(errs, &InputError{Index: idx, Err: fmt.Errorf("parsing field: %w", parseErr)})
			continue
		}
		mr, ma, me, mt, md := fields[0], fields[1], fields[2], fields[3], fields[4]
		if haveLast && mt < lastTime {
			errs = append(errs, &InputError{Index: idx, Err: fmt.Errorf("non-monotonic time %f after %f", mt, lastTime)})
			continue
		}
		lastTime = mt
		haveLast = true
		measurements = append(measurements, NewMeasurement(mr, ma, me, mt, md))
	}
	return measurements, errs
}
