package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/revoke"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint returning service health status and checks for critical dependencies
//	@Description	Includes uptime, version, and status of the database, token signer and revocation store
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	gatesdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	gatesdk.HealthResponse	"status, uptime, version, checks - service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	verifier *jwtx.EdDSAVerifier,
	revoked *revoke.Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &gatesdk.HealthChecks{
			Database: "ok",
			Signer:   "ok",
			Revoker:  "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		// Check database connectivity
		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// Check the verifier has keys loaded
		if !verifier.IsReady() {
			checks.Signer = "error: no keys loaded"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		// The shared revocation tier degrades readiness but, like every
		// revocation lookup, its absence does not block traffic.
		if err := revoked.Ready(r.Context()); err != nil {
			checks.Revoker = "error: " + err.Error()
			if overallStatus == "ok" {
				overallStatus = "degraded"
			}
		}

		response := gatesdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
