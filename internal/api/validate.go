package api

import (
	"fmt"

	"depotassign/internal/model"
)

func validateSnapshot(in *model.SnapshotIn) error {
	if len(in.Distances) == 0 {
		return fmt.Errorf("distances must not be empty")
	}
	for res, row := range in.Distances {
		for dem, d := range row {
			if d < 0 {
				return fmt.Errorf("distance %s->%s must be >= 0", res, dem)
			}
		}
	}
	for res, row := range in.Times {
		for dem, t := range row {
			if t < 0 {
				return fmt.Errorf("time %s->%s must be >= 0", res, dem)
			}
		}
	}
	for res, c := range in.Capacities {
		if c < 0 {
			return fmt.Errorf("capacity for %s must be >= 0", res)
		}
	}
	if in.DefaultCapacity < 0 {
		return fmt.Errorf("defaultCapacity must be >= 0")
	}
	return nil
}

func validateRunRequest(req *model.RunRequest) error {
	if req.SnapshotID == "" {
		return fmt.Errorf("snapshotId is required")
	}
	if req.Objective != "" && req.Objective != "distance" && req.Objective != "time" {
		return fmt.Errorf("invalid objective: %s (allowed: distance,time)", req.Objective)
	}
	if req.TimeLimitSec < 0 {
		return fmt.Errorf("timeLimitSec must be >= 0")
	}
	if req.Gap < 0 || req.Gap >= 1 {
		return fmt.Errorf("gap must be in [0,1)")
	}
	for i, st := range req.Strategies {
		if st.CapacityFactor < 0 {
			return fmt.Errorf("strategies[%d]: capacityFactor must be >= 0", i)
		}
		if st.Balance {
			if st.BalanceMin < 0 || st.BalanceMax < 0 {
				return fmt.Errorf("strategies[%d]: balance bounds must be >= 0", i)
			}
			if st.BalanceMax > 0 && st.BalanceMin > st.BalanceMax {
				return fmt.Errorf("strategies[%d]: balanceMin must be <= balanceMax", i)
			}
		}
	}
	if w := req.Weights; w != nil {
		if w.RoundTripFactor < 0 {
			return fmt.Errorf("weights.roundTripFactor must be >= 0")
		}
		if w.ActivationCost < 0 {
			return fmt.Errorf("weights.activationCost must be >= 0")
		}
		if w.MaxTimePenalty < 0 {
			return fmt.Errorf("weights.maxTimePenalty must be >= 0")
		}
		if w.SpeedKmh < 0 {
			return fmt.Errorf("weights.speedKmh must be >= 0")
		}
	}
	return nil
}
