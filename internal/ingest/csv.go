package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"depotassign/internal/model"
)

// CSVSource parses pairwise cost rows of the form
//
//	resource_id,demand_id,distance_km[,time_min]
//
// with an optional header line. Capacities arrive as special rows with an
// empty demand id:
//
//	resource_id,,capacity
type CSVSource struct{}

func (CSVSource) Name() string { return "csv" }

func (CSVSource) Parse(data []byte) (model.SnapshotIn, error) {
	in := model.SnapshotIn{
		Distances:  map[string]map[string]float64{},
		Times:      map[string]map[string]float64{},
		Capacities: map[string]int{},
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return model.SnapshotIn{}, fmt.Errorf("ingest: parse csv: %w", err)
	}
	for i, rec := range records {
		if len(rec) < 3 {
			return model.SnapshotIn{}, fmt.Errorf("ingest: row %d: need at least 3 fields", i+1)
		}
		res := strings.TrimSpace(rec[0])
		dem := strings.TrimSpace(rec[1])
		if i == 0 && looksLikeHeader(rec) {
			continue
		}
		if res == "" {
			return model.SnapshotIn{}, fmt.Errorf("ingest: row %d: empty resource id", i+1)
		}
		if dem == "" {
			c, err := strconv.Atoi(strings.TrimSpace(rec[2]))
			if err != nil || c < 0 {
				return model.SnapshotIn{}, fmt.Errorf("ingest: row %d: bad capacity %q", i+1, rec[2])
			}
			in.Capacities[res] = c
			continue
		}
		dist, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if err != nil || dist < 0 {
			return model.SnapshotIn{}, fmt.Errorf("ingest: row %d: bad distance %q", i+1, rec[2])
		}
		if in.Distances[res] == nil {
			in.Distances[res] = map[string]float64{}
		}
		in.Distances[res][dem] = dist
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			t, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
			if err != nil || t < 0 {
				return model.SnapshotIn{}, fmt.Errorf("ingest: row %d: bad time %q", i+1, rec[3])
			}
			if in.Times[res] == nil {
				in.Times[res] = map[string]float64{}
			}
			in.Times[res][dem] = t
		}
	}
	if len(in.Times) == 0 {
		in.Times = nil
	}
	if len(in.Capacities) == 0 {
		in.Capacities = nil
	}
	return in, nil
}

func looksLikeHeader(rec []string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	return err != nil
}
