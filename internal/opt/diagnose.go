package opt

// Diagnosis attributes an infeasible attempt to causes visible in the input
// data. Deterministic for identical inputs so failed runs reproduce exactly.
type Diagnosis struct {
	// CapacityDeficit is how many demand units exceed total capacity.
	CapacityDeficit int `json:"capacityDeficit"`
	// IsolatedDemands have no valid cost entry under any resource.
	IsolatedDemands []string `json:"isolatedDemands,omitempty"`
	// UnderusedResources have fewer reachable demand units than stated
	// capacity. A data-quality warning, not a blocking condition.
	UnderusedResources []string `json:"underusedResources,omitempty"`
}

// Blocking reports whether the diagnosis names a condition that makes the
// unrelaxed problem structurally unsolvable.
func (d Diagnosis) Blocking() bool {
	return d.CapacityDeficit > 0 || len(d.IsolatedDemands) > 0
}

// Diagnose inspects the instance after a failed attempt. Read-only.
func Diagnose(in Instance) Diagnosis {
	var d Diagnosis
	if deficit := len(in.DemandIDs) - in.TotalCapacity(); deficit > 0 {
		d.CapacityDeficit = deficit
	}
	reachable := map[string]int{}
	for _, dm := range in.DemandIDs {
		res := validResources(in.Distances, in.ResourceIDs, dm)
		if len(res) == 0 {
			d.IsolatedDemands = append(d.IsolatedDemands, dm)
		}
		for _, r := range res {
			reachable[r]++
		}
	}
	for _, r := range in.ResourceIDs {
		if reachable[r] < in.Capacity(r) {
			d.UnderusedResources = append(d.UnderusedResources, r)
		}
	}
	return d
}
