package api

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"depotassign/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"ADDR":                 s.Cfg.Listen,
			"AUTH_MODE":            os.Getenv("AUTH_MODE"),
			"SOLVER_BACKEND":       s.Cfg.Solver.Backend,
			"RUNS_PER_SEC":         os.Getenv("RUNS_PER_SEC"),
			"RUNS_BURST":           os.Getenv("RUNS_BURST"),
			"WEBHOOK_MAX_ATTEMPTS": os.Getenv("WEBHOOK_MAX_ATTEMPTS"),
			"HAS_DATABASE_URL":     s.Cfg.DatabaseURL != "",
			"HAS_REDIS_URL":        s.Cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
