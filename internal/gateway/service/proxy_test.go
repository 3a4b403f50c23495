package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/chatgate/internal/gateway/domain"
	"github.com/aussiebroadwan/chatgate/internal/gateway/store"
	"github.com/aussiebroadwan/chatgate/internal/gateway/upstream"
	"github.com/stretchr/testify/require"
)

type bufferSink struct {
	bytes.Buffer
	flushes int
}

func (b *bufferSink) Flush() { b.flushes++ }

func newTestProxy(t *testing.T, handler http.HandlerFunc) (*ProxyService, *atomic.Int64) {
	t.Helper()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return &ProxyService{
		Store:    newTestStore(t),
		Upstream: upstream.NewClient(srv.URL, "sk-test"),
	}, &calls
}

func chatPrincipal(subject string) domain.Principal {
	return domain.Principal{
		SubjectID: subject,
		Mode:      domain.AuthModeToken,
		Scopes:    []string{"llm:chat"},
	}
}

func TestCompleteSettlesUpstreamUsage(t *testing.T) {
	ctx := context.Background()
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[],"usage":{"prompt_tokens":50,"completion_tokens":100,"total_tokens":150}}`)
	})
	proxy.CreditsPerUnit = 2

	require.NoError(t, proxy.Store.Balances().CreditBalance(ctx, "user-42", 1000, time.Now()))

	res, settlement, err := proxy.Complete(ctx, chatPrincipal("user-42"), "req-1", []byte(`{"model":"test"}`))
	require.NoError(t, err)
	require.Contains(t, string(res.Body), "cmpl-1")

	// 150 units at 2 credits each.
	require.Equal(t, int64(150), settlement.Units)
	require.Equal(t, int64(300), settlement.Cost)
	require.Equal(t, domain.UsageSourceUpstream, settlement.Source)
	require.Equal(t, int64(700), settlement.Remaining)

	balance, err := proxy.Store.Balances().GetBalance(ctx, "user-42")
	require.NoError(t, err)
	require.Equal(t, int64(700), balance.Credits)

	entries, err := proxy.Store.Ledger().ListLedgerEntries(ctx, "user-42", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, int64(150), entries[0].Units)
	require.Equal(t, int64(300), entries[0].Cost)
	require.Equal(t, int64(700), entries[0].BalanceAfter)
	require.Equal(t, "req-1", entries[0].RequestID)
}

func TestLedgerEntriesFormRunningTotal(t *testing.T) {
	ctx := context.Background()
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-1","choices":[],"usage":{"prompt_tokens":50,"completion_tokens":100,"total_tokens":150}}`)
	})
	proxy.CreditsPerUnit = 2

	require.NoError(t, proxy.Store.Balances().CreditBalance(ctx, "user-42", 1000, time.Now()))

	_, _, err := proxy.Complete(ctx, chatPrincipal("user-42"), "req-1", []byte(`{}`))
	require.NoError(t, err)
	_, _, err = proxy.Complete(ctx, chatPrincipal("user-42"), "req-2", []byte(`{}`))
	require.NoError(t, err)

	// Newest first: 1000 -> 700 -> 400. Each entry's balance plus its cost
	// must equal the balance before it.
	entries, err := proxy.Store.Ledger().ListLedgerEntries(ctx, "user-42", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, int64(400), entries[0].BalanceAfter)
	require.Equal(t, int64(700), entries[1].BalanceAfter)
	require.Equal(t, entries[1].BalanceAfter, entries[0].BalanceAfter+entries[0].Cost)

	balance, err := proxy.Store.Balances().GetBalance(ctx, "user-42")
	require.NoError(t, err)
	require.Equal(t, entries[0].BalanceAfter, balance.Credits)
}

func TestCompleteRefusedBelowMinBalance(t *testing.T) {
	ctx := context.Background()
	proxy, calls := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	})
	proxy.MinBalance = 10

	_, _, err := proxy.Complete(ctx, chatPrincipal("broke-user"), "req-1", []byte(`{}`))
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Equal(t, int64(0), calls.Load(), "upstream must not be called when admission fails")
}

func TestCompleteEstimatesWhenUsageMissing(t *testing.T) {
	ctx := context.Background()

	body := `{"id":"cmpl-2","choices":[{"message":{"content":"hello there"}}]}`
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})

	require.NoError(t, proxy.Store.Balances().CreditBalance(ctx, "user-42", 1000, time.Now()))

	_, settlement, err := proxy.Complete(ctx, chatPrincipal("user-42"), "req-1", []byte(`{}`))
	require.NoError(t, err)
	require.Equal(t, domain.UsageSourceEstimated, settlement.Source)

	// ceil(len(body) / 4) units at the default rate.
	want := (int64(len(body)) + 3) / 4
	require.Equal(t, want, settlement.Units)
	require.Equal(t, want, settlement.Cost)
}

func TestStreamRelaysAndSettles(t *testing.T) {
	ctx := context.Background()
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":4,\"total_tokens\":7}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	require.NoError(t, proxy.Store.Balances().CreditBalance(ctx, "user-42", 100, time.Now()))

	sink := &bufferSink{}
	settlement, err := proxy.Stream(ctx, chatPrincipal("user-42"), "req-1", []byte(`{"stream":true}`), sink)
	require.NoError(t, err)

	require.Contains(t, sink.String(), "data: [DONE]")
	require.Greater(t, sink.flushes, 0, "events must be flushed as they pass")

	require.Equal(t, int64(7), settlement.Units)
	require.Equal(t, domain.UsageSourceUpstream, settlement.Source)
	require.Equal(t, int64(93), settlement.Remaining)
}

func TestStreamEstimatesWhenNoUsageChunk(t *testing.T) {
	ctx := context.Background()
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	require.NoError(t, proxy.Store.Balances().CreditBalance(ctx, "user-42", 100, time.Now()))

	sink := &bufferSink{}
	settlement, err := proxy.Stream(ctx, chatPrincipal("user-42"), "req-1", []byte(`{}`), sink)
	require.NoError(t, err)
	require.Equal(t, domain.UsageSourceEstimated, settlement.Source)
	require.Greater(t, settlement.Units, int64(0))

	entries, err := proxy.Store.Ledger().ListLedgerEntries(ctx, "user-42", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.UsageSourceEstimated, entries[0].Source)
}

// settleFailStore wraps a working store with a WithTx that always fails,
// simulating a ledger write outage after the upstream already answered.
type settleFailStore struct {
	store.Store
	err error
}

func (s *settleFailStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return s.err
}

func TestCompleteReturnsResponseWhenSettleFails(t *testing.T) {
	ctx := context.Background()
	proxy, calls := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"cmpl-9","choices":[],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	})
	proxy.Store = &settleFailStore{Store: proxy.Store, err: errors.New("disk full")}

	// The provider delivered, so the caller still gets the response; the
	// unrecorded usage becomes a reconciliation log line, not an error.
	res, settlement, err := proxy.Complete(ctx, chatPrincipal("user-42"), "req-1", []byte(`{}`))
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Contains(t, string(res.Body), "cmpl-9")
	require.Nil(t, settlement)
	require.Equal(t, int64(1), calls.Load())
}

func TestStreamStillDeliversWhenSettleFails(t *testing.T) {
	ctx := context.Background()
	proxy, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	proxy.Store = &settleFailStore{Store: proxy.Store, err: errors.New("disk full")}

	sink := &bufferSink{}
	settlement, err := proxy.Stream(ctx, chatPrincipal("user-42"), "req-1", []byte(`{}`), sink)
	require.NoError(t, err)
	require.Nil(t, settlement)
	require.Contains(t, sink.String(), "data: [DONE]")
}

func TestStreamRefusedBelowMinBalance(t *testing.T) {
	ctx := context.Background()
	proxy, calls := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {})
	proxy.MinBalance = 1

	sink := &bufferSink{}
	_, err := proxy.Stream(ctx, chatPrincipal("broke-user"), "req-1", []byte(`{}`), sink)
	require.ErrorIs(t, err, ErrInsufficientCredits)
	require.Equal(t, int64(0), calls.Load())
	require.Zero(t, sink.Len())
}
