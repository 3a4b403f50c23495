package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/internal/gateway/upstream"
	"github.com/aussiebroadwan/chatgate/pkg/idx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// ErrInsufficientCredits is returned by the pre-flight balance check. No
// upstream call is made when this fires.
var ErrInsufficientCredits = errors.New("insufficient_credits")

const (
	// DefaultCreditsPerUnit is the price of one usage unit.
	DefaultCreditsPerUnit = 1

	// DefaultFallbackBytesPerUnit converts relayed bytes into usage units
	// when the provider reports no usage block. Four bytes per token is the
	// usual rough ratio for English text.
	DefaultFallbackBytesPerUnit = 4
)

// StreamSink is where the proxy relays SSE lines. The HTTP layer hands in
// the response writer; Flush must push the event to the wire immediately.
type StreamSink interface {
	io.Writer
	Flush()
}

// Settlement is the billing outcome of one proxied request.
type Settlement struct {
	Units     int64
	Cost      int64
	Source    domain.UsageSource
	Remaining int64
}

// ProxyService relays chat completions to the upstream provider and meters
// them. Admission is a balance check before any upstream byte moves;
// settlement is an atomic debit plus a ledger append after the response
// finishes, however it finishes.
type ProxyService struct {
	Store    store.Store
	Upstream *upstream.Client

	// CreditsPerUnit prices a usage unit in credits.
	CreditsPerUnit int64

	// MinBalance is the pre-flight floor. A subject below it is refused
	// before the upstream is touched. Zero lets a fresh subject run one
	// request into the negative, which is the intended grace.
	MinBalance int64

	// FallbackBytesPerUnit drives the estimate when no usage is reported.
	FallbackBytesPerUnit int64
}

func (s *ProxyService) creditsPerUnit() int64 {
	if s.CreditsPerUnit <= 0 {
		return DefaultCreditsPerUnit
	}
	return s.CreditsPerUnit
}

func (s *ProxyService) fallbackBytesPerUnit() int64 {
	if s.FallbackBytesPerUnit <= 0 {
		return DefaultFallbackBytesPerUnit
	}
	return s.FallbackBytesPerUnit
}

// CheckBalance is the pre-flight admission gate. A subject with no balance
// row is treated as holding zero credits.
func (s *ProxyService) CheckBalance(ctx context.Context, subjectID string) error {
	balance, err := s.Store.Balances().GetBalance(ctx, subjectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if balance.Credits < s.MinBalance {
		return ErrInsufficientCredits
	}
	return nil
}

// Complete relays a buffered completion and settles its usage. The returned
// body is the provider's response verbatim.
func (s *ProxyService) Complete(ctx context.Context, p domain.Principal, requestID string, body []byte) (*upstream.Result, *Settlement, error) {
	if err := s.CheckBalance(ctx, p.SubjectID); err != nil {
		return nil, nil, err
	}

	res, err := s.Upstream.Complete(ctx, body)
	if err != nil {
		return nil, nil, err
	}

	var (
		units  int64
		source domain.UsageSource
	)
	if res.Usage != nil {
		units = res.Usage.TotalTokens
		source = domain.UsageSourceUpstream
	} else {
		units = s.estimateUnits(int64(len(res.Body)))
		source = domain.UsageSourceEstimated
	}

	settlement, err := s.settle(ctx, p.SubjectID, requestID, units, source)
	if err != nil {
		// The provider already delivered; dropping the response over a
		// ledger write helps nobody. Log the unrecorded usage for
		// reconciliation and hand the response back anyway.
		s.logReconciliation(ctx, p.SubjectID, requestID, units, source, err)
		return res, nil, nil
	}
	return res, settlement, nil
}

// Stream relays an SSE completion to sink line by line, never holding more
// than one line in memory, and settles after the stream ends. Settlement
// happens even when the client hangs up or the upstream drops mid-stream;
// whatever was relayed gets billed.
func (s *ProxyService) Stream(ctx context.Context, p domain.Principal, requestID string, body []byte, sink StreamSink) (*Settlement, error) {
	if err := s.CheckBalance(ctx, p.SubjectID); err != nil {
		return nil, err
	}

	stream, err := s.Upstream.Stream(ctx, body)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var relayErr error
	for {
		line, err := stream.Next()
		if err != nil {
			if err != io.EOF {
				relayErr = err
			}
			break
		}
		if _, err := sink.Write(append(line, '\n')); err != nil {
			// Client went away. Stop relaying, still settle below.
			relayErr = err
			break
		}
		if len(line) == 0 {
			// Blank line ends an SSE event; push it out now.
			sink.Flush()
		}
	}
	sink.Flush()

	var (
		units  int64
		source domain.UsageSource
	)
	if usage := stream.Usage(); usage != nil {
		units = usage.TotalTokens
		source = domain.UsageSourceUpstream
	} else {
		units = s.estimateUnits(stream.RelayedBytes())
		source = domain.UsageSourceEstimated
	}

	if relayErr != nil {
		slogx.FromContext(ctx).Warn("stream ended early, settling relayed usage",
			slog.String("sub", p.SubjectID),
			slog.Int64("units", units),
			slog.String("error", relayErr.Error()),
		)
	}

	settlement, err := s.settle(ctx, p.SubjectID, requestID, units, source)
	if err != nil {
		// Bytes already reached the client; same reconciliation policy as
		// the buffered path.
		s.logReconciliation(ctx, p.SubjectID, requestID, units, source, err)
		return nil, nil
	}
	return settlement, nil
}

// logReconciliation records usage that was delivered but could not be
// settled. These lines are the input to manual or scripted reconciliation;
// they carry everything a ledger entry would have.
func (s *ProxyService) logReconciliation(ctx context.Context, subjectID, requestID string, units int64, source domain.UsageSource, err error) {
	slogx.FromContext(ctx).Error("settlement failed, usage unrecorded; reconciliation needed",
		slog.String("sub", subjectID),
		slog.String("request_id", requestID),
		slog.Int64("units", units),
		slog.Int64("cost", units*s.creditsPerUnit()),
		slog.String("source", string(source)),
		slog.String("error", err.Error()),
	)
}

// estimateUnits converts relayed bytes into usage units, rounding up so a
// short response still costs at least one unit.
func (s *ProxyService) estimateUnits(bytes int64) int64 {
	if bytes <= 0 {
		return 0
	}
	per := s.fallbackBytesPerUnit()
	return (bytes + per - 1) / per
}

// settle debits the subject and appends the ledger entry in one transaction.
// It runs on a context detached from the request so a client cancellation
// cannot dodge the bill. Zero units settle to nothing and leave no entry.
func (s *ProxyService) settle(ctx context.Context, subjectID, requestID string, units int64, source domain.UsageSource) (*Settlement, error) {
	if units == 0 {
		return &Settlement{Source: source}, nil
	}

	cost := units * s.creditsPerUnit()
	now := time.Now().UTC()
	ctx = context.WithoutCancel(ctx)

	var remaining int64
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		remaining, err = tx.Balances().DebitBalance(ctx, subjectID, cost, now)
		if err != nil {
			return err
		}
		return tx.Ledger().AppendLedgerEntry(ctx, domain.LedgerEntry{
			ID:           idx.New(),
			SubjectID:    subjectID,
			Units:        units,
			Cost:         cost,
			BalanceAfter: remaining,
			Source:       source,
			RequestID:    requestID,
			OccurredAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	slogx.FromContext(ctx).Info("usage settled",
		slog.String("sub", subjectID),
		slog.Int64("units", units),
		slog.Int64("cost", cost),
		slog.String("source", string(source)),
		slog.Int64("remaining", remaining),
	)

	return &Settlement{
		Units:     units,
		Cost:      cost,
		Source:    source,
		Remaining: remaining,
	}, nil
}
