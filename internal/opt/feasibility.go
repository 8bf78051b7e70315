package opt

// Report lists every blocking condition found by the pre-check, not just the
// first, so one pass surfaces all of them. A passing report is advisory:
// combinatorial packing infeasibility can still surface at solve time.
type Report struct {
	DemandCount     int      `json:"demandCount"`
	TotalCapacity   int      `json:"totalCapacity"`
	CapacityDeficit int      `json:"capacityDeficit"`
	IsolatedDemands []string `json:"isolatedDemands,omitempty"`
}

// OK reports whether no blocking condition was found.
func (r Report) OK() bool {
	return r.CapacityDeficit == 0 && len(r.IsolatedDemands) == 0
}

// Check runs the cheap necessary-condition checks over the raw inputs. Pure;
// no model is built.
func Check(in Instance) Report {
	rep := Report{
		DemandCount:   len(in.DemandIDs),
		TotalCapacity: in.TotalCapacity(),
	}
	if rep.DemandCount > rep.TotalCapacity {
		rep.CapacityDeficit = rep.DemandCount - rep.TotalCapacity
	}
	for _, d := range in.DemandIDs {
		if len(validResources(in.Distances, in.ResourceIDs, d)) == 0 {
			rep.IsolatedDemands = append(rep.IsolatedDemands, d)
		}
	}
	return rep
}
