package app

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tracklab/launch/internal/agent"
)

// healthResponse is the body served by the agent health endpoint.
type healthResponse struct {
	AgentID  string `json:"agent_id"`
	InFlight int    `json:"in_flight"`
}

// startHealthServer runs a small HTTP server reporting agent liveness and
// the in-flight run count.
func (a *App) startHealthServer(port int, ag *agent.Agent) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{AgentID: ag.ID(), InFlight: ag.InFlight()})
	})

	addr := fmt.Sprintf(":%d", port)

	go func() {
		a.logger.Info("Agent health server starting.", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Error("Agent health server failed.", "error", err)
		}
	}()
}
