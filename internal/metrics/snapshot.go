package metrics

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WriteSnapshot encodes every family from gatherer in Prometheus text
// format.
func WriteSnapshot(w io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteSnapshotFile writes a snapshot to path, replacing any previous one.
func WriteSnapshotFile(path string, gatherer prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := WriteSnapshot(f, gatherer); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadSnapshot parses a text-format snapshot into families keyed by name.
func ReadSnapshot(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	parsed := make(map[string]*dto.MetricFamily)

	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		parsed[mf.GetName()] = &mf
	}
	return parsed, nil
}

// Gather collects families from gatherer keyed by name.
func Gather(gatherer prometheus.Gatherer) (map[string]*dto.MetricFamily, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, mf := range families {
		out[mf.GetName()] = mf
	}
	return out, nil
}

// Totals is a flat view of the runner's counters.
type Totals struct {
	Started        float64
	SpawnFailures  float64
	Terminations   map[string]float64 // by classification
	OutputBytes    float64
	CancelRequests map[string]float64 // by result
}

// Summarize extracts Totals from parsed or gathered families.
func Summarize(families map[string]*dto.MetricFamily) Totals {
	return Totals{
		Started:        sumCounter(families[namespace+"_processes_started_total"]),
		SpawnFailures:  sumCounter(families[namespace+"_spawn_failures_total"]),
		Terminations:   counterByLabel(families[namespace+"_process_terminations_total"], "classification"),
		OutputBytes:    sumCounter(families[namespace+"_output_bytes_total"]),
		CancelRequests: counterByLabel(families[namespace+"_cancel_requests_total"], "result"),
	}
}

func sumCounter(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		total += m.GetCounter().GetValue()
	}
	return total
}

func counterByLabel(mf *dto.MetricFamily, label string) map[string]float64 {
	out := make(map[string]float64)
	if mf == nil {
		return out
	}
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label {
				out[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}
