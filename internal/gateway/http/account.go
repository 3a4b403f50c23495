package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// AccountHandler serves the authenticated read-only account surface.
type AccountHandler struct {
	AccountService *service.AccountService
}

// HandleBalance godoc
//
//	@Summary		Credit Balance
//	@Description	Returns the caller's remaining credit balance. Subjects that never spent read as zero.
//	@Tags			Account
//	@Produce		json
//	@Success		200	{object}	gatesdk.BalanceResponse
//	@Failure		401	{object}	gatesdk.APIError
//	@Failure		403	{object}	gatesdk.APIError
//	@Security		BearerAuth
//	@Router			/v1/balance [get].
func (h *AccountHandler) HandleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		gatesdk.ErrUnauthorized.WriteError(w)
		return
	}

	balance, err := h.AccountService.Balance(ctx, p.SubjectID)
	if err != nil {
		slogx.FromContext(ctx).Error("balance lookup failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, gatesdk.BalanceResponse{
		SubjectID: balance.SubjectID,
		Balance:   balance.Credits,
	})
}

// HandleUsage godoc
//
//	@Summary		Usage Ledger
//	@Description	Returns the caller's most recent usage ledger entries, newest first.
//	@Tags			Account
//	@Produce		json
//	@Param			limit	query		int	false	"Maximum entries to return (default 50)"
//	@Success		200		{object}	gatesdk.UsageResponse
//	@Failure		401		{object}	gatesdk.APIError
//	@Failure		403		{object}	gatesdk.APIError
//	@Security		BearerAuth
//	@Router			/v1/usage [get].
func (h *AccountHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		gatesdk.ErrUnauthorized.WriteError(w)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.AccountService.Usage(ctx, p.SubjectID, limit)
	if err != nil {
		slogx.FromContext(ctx).Error("usage lookup failed", "error", err)
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	out := gatesdk.UsageResponse{Entries: make([]gatesdk.LedgerEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, gatesdk.LedgerEntry{
			ID:           e.ID.String(),
			SubjectID:    e.SubjectID,
			Units:        e.Units,
			Cost:         e.Cost,
			BalanceAfter: e.BalanceAfter,
			Source:       string(e.Source),
			OccurredAt:   e.OccurredAt.UnixMilli(),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
