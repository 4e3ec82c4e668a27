package track

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LogAssociationKind tags a detailed-log row's AssociationType column, per
// spec.md §6: Single (correlation check), New (birth), JPDA, Munkres.
type LogAssociationKind string

const (
	LogSingle  LogAssociationKind = "Single"
	LogNew     LogAssociationKind = "New"
	LogJPDA    LogAssociationKind = "JPDA"
	LogMunkres LogAssociationKind = "Munkres"
)

// DetailedLogRow is one record of the detailed per-measurement log stream
// named in spec.md §6.
type DetailedLogRow struct {
	Time              float64
	MeasurementX      float64
	MeasurementY      float64
	MeasurementZ      float64
	CurrentState      LadderState
	CorrelationOutput bool
	AssociatedTrackID int // -1 if the ingest was dropped on a numerical error; a birth row carries the new track's ID
	AssociatedX       float64
	AssociatedY       float64
	AssociatedZ       float64
	AssociationType   LogAssociationKind
	ClustersFormed    int
	HypothesesGenerated int
	ProbabilityOfHypothesis float64
	BestReportSelected int
}

// detailedLogHeader mirrors the teacher's export.go convention of a
// hand-written comma-joined header string ahead of the row loop.
var detailedLogHeader = []string{
	"Time", "MeasurementX", "MeasurementY", "MeasurementZ", "CurrentState",
	"CorrelationOutput", "AssociatedTrackID", "AssociatedPositionX", "AssociatedPositionY", "AssociatedPositionZ",
	"AssociationType", "ClustersFormed", "HypothesesGenerated", "ProbabilityOfHypothesis", "BestReportSelected",
}

// WriteDetailedLog streams rows to w as CSV via encoding/csv, the same
// package the teacher's export.go uses for its Cosmographia/CSV dual
// export, adapted here to the tracker's own detailed-log schema.
func WriteDetailedLog(w io.Writer, rows []DetailedLogRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(detailedLogHeader); err != nil {
		return fmt.Errorf("writing detailed log header: %w", err)
	}
	for _, r := range rows {
		correlation := "No"
		if r.CorrelationOutput {
			correlation = "Yes"
		}
		trackID := "-"
		if r.AssociatedTrackID >= 0 {
			trackID = strconv.Itoa(r.AssociatedTrackID)
		}
		record := []string{
			strconv.FormatFloat(r.Time, 'f', -1, 64),
			strconv.FormatFloat(r.MeasurementX, 'f', -1, 64),
			strconv.FormatFloat(r.MeasurementY, 'f', -1, 64),
			strconv.FormatFloat(r.MeasurementZ, 'f', -1, 64),
			r.CurrentState.String(),
			correlation,
			trackID,
			strconv.FormatFloat(r.AssociatedX, 'f', -1, 64),
			strconv.FormatFloat(r.AssociatedY, 'f', -1, 64),
			strconv.FormatFloat(r.AssociatedZ, 'f', -1, 64),
			string(r.AssociationType),
			strconv.Itoa(r.ClustersFormed),
			strconv.Itoa(r.HypothesesGenerated),
			strconv.FormatFloat(r.ProbabilityOfHypothesis, 'f', -1, 64),
			strconv.Itoa(r.BestReportSelected),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing detailed log row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// trackSummaryHeader matches spec.md §6's per-track snapshot record. Each
// ladder state contributes a <state>Time column; the ladder is fixed at
// mode 7's superset so the header is stable across runs regardless of
// track_mode (rungs unreached by a shorter ladder are left blank).
var trackSummaryLadder = Ladder{Poss1, Poss2, Tentative1, Tentative2, Tentative3, Tentative4, Firm}

func trackSummaryHeader() []string {
	header := []string{"TrackID", "CurrentState"}
	for _, s := range trackSummaryLadder {
		header = append(header, s.String()+"Time")
	}
	for _, s := range trackSummaryLadder {
		header = append(header, s.String()+"Measurements")
	}
	header = append(header, "TrackStatus", "HitCount", "MissCount", "IngestCount")
	return header
}

// rungMeasurements returns up to the first three measurements an ingest
// recorded while the track was in ladder state rung, per
// original_source/1.py's track-summary rows (`[m for m, s in
// track['measurements'] if s == rung][:3]`).
func rungMeasurements(ingests []Ingest, rung LadderState) string {
	out := ""
	n := 0
	for _, ing := range ingests {
		if ing.State != rung {
			continue
		}
		if n > 0 {
			out += ";"
		}
		out += fmt.Sprintf("%g %g %g", ing.Measurement.X, ing.Measurement.Y, ing.Measurement.Z)
		n++
		if n == 3 {
			break
		}
	}
	return out
}

// WriteTrackSummary streams one record per track, per spec.md §6's track
// summary snapshot output, including the full Sf/Sp/Pf/Pp filter histories
// original_source/1.py writes under the SF/SP/PF/PP columns. Each history
// column is a "|"-separated sequence with one entry per ingest;
// the fixed columns above them are stable across track_mode so the header
// never varies, while these trailing columns carry the variable-length
// per-track histories.
func WriteTrackSummary(w io.Writer, snapshots []Snapshot) error {
	cw := csv.NewWriter(w)
	header := trackSummaryHeader()
	header = append(header, "SF", "SP", "PF", "PP")
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing track summary header: %w", err)
	}
	for _, s := range snapshots {
		record := []string{strconv.Itoa(s.ID), s.CurrentState.String()}
		for _, rung := range trackSummaryLadder {
			if t, ok := s.StateTransitionTimes[rung]; ok {
				record = append(record, strconv.FormatFloat(t, 'f', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		for _, rung := range trackSummaryLadder {
			record = append(record, rungMeasurements(s.Ingests, rung))
		}
		status := "Free"
		if s.SlotOccupied {
			status = "Occupied"
		}
		record = append(record, status)
		record = append(record, strconv.Itoa(s.HitCount), strconv.Itoa(s.MissCount), strconv.Itoa(len(s.Ingests)))
		record = append(record,
			serializeVectorHistory(s.Ingests, func(fs FilterState) *mat.VecDense { return fs.Sf }),
			serializeVectorHistory(s.Ingests, func(fs FilterState) *mat.VecDense { return fs.Sp }),
			serializeMatrixHistory(s.Ingests, func(fs FilterState) *mat.Dense { return fs.Pf }),
			serializeMatrixHistory(s.Ingests, func(fs FilterState) *mat.Dense { return fs.Pp }),
		)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing track summary row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// serializeVectorHistory renders one state-vector column (Sf or Sp) from
// every ingest's snapshot as a "|"-separated sequence of space-joined
// components, matching the nested-list shape of original_source/1.py's
// `[sf.tolist() for sf in track['Sf']]` column.
func serializeVectorHistory(ingests []Ingest, pick func(FilterState) *mat.VecDense) string {
	out := ""
	for i, ing := range ingests {
		v := pick(ing.Snapshot)
		if i > 0 {
			out += "|"
		}
		for j := 0; j < v.Len(); j++ {
			if j > 0 {
				out += " "
			}
			out += fmt.Sprintf("%g", v.AtVec(j))
		}
	}
	return out
}

// serializeMatrixHistory renders one covariance-history column (Pf or Pp)
// from every ingest's snapshot as a "|"-separated sequence of
// semicolon-joined rows, each row space-joined, mirroring
// serializeVectorHistory's nesting for the PF/PP columns.
func serializeMatrixHistory(ingests []Ingest, pick func(FilterState) *mat.Dense) string {
	out := ""
	for i, ing := range ingests {
		m := pick(ing.Snapshot)
		if i > 0 {
			out += "|"
		}
		r, c := m.Dims()
		for row := 0; row < r; row++ {
			if row > 0 {
				out += ";"
			}
			for col := 0; col < c; col++ {
				if col > 0 {
					out += " "
				}
				out += fmt.Sprintf("%g", m.At(row, col))
			}
		}
	}
	return out
}
