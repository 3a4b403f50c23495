package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/aussiebroadwan/chatgate/internal/gateway/service"
	"github.com/aussiebroadwan/chatgate/internal/gateway/upstream"
	"github.com/aussiebroadwan/chatgate/pkg/gatesdk"
	"github.com/aussiebroadwan/chatgate/pkg/httpx"
	"github.com/aussiebroadwan/chatgate/pkg/slogx"
)

// maxChatBodyBytes caps the relayed request body.
const maxChatBodyBytes = 1 << 20

// ChatHandler serves POST /v1/chat/completions, the metered proxy in front
// of the upstream model provider. The request body is relayed verbatim; the
// gateway only reads the "stream" flag to pick the relay mode.
type ChatHandler struct {
	ProxyService *service.ProxyService
}

// ServeHTTP godoc
//
//	@Summary		Chat Completion Proxy
//	@Description	Relays a chat completion request to the upstream model provider and meters its usage.
//	@Description	The caller's balance is checked before the upstream is contacted and debited after the response completes.
//	@Description	Set "stream": true in the body for a server-sent-events relay.
//	@Tags			Chat
//	@Accept			json
//	@Produce		json
//	@Param			request	body		gatesdk.ChatCompletionRequest	true	"Chat completion request (relayed verbatim)"
//	@Success		200		{object}	gatesdk.ChatCompletionResponse
//	@Failure		401		{object}	gatesdk.APIError
//	@Failure		402		{object}	gatesdk.APIError	"insufficient credit balance"
//	@Failure		403		{object}	gatesdk.APIError
//	@Failure		502		{object}	gatesdk.APIError	"upstream provider failure"
//	@Security		BearerAuth
//	@Router			/v1/chat/completions [post].
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	p, ok := PrincipalFromCtx(ctx)
	if !ok {
		gatesdk.ErrUnauthorized.WriteError(w)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxChatBodyBytes))
	if err != nil {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	// The body passes through untouched; only the stream flag matters here.
	var mode struct {
		Stream bool `json:"stream"`
	}
	if err := json.Unmarshal(body, &mode); err != nil {
		gatesdk.ErrInvalidRequest.WriteError(w)
		return
	}

	reqID := slogx.RequestIDFromContext(ctx)

	if !mode.Stream {
		res, _, err := h.ProxyService.Complete(ctx, p, reqID, body)
		if err != nil {
			writeProxyError(w, err)
			return
		}
		httpx.NoCache(w)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Body)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("response writer does not support flushing, cannot stream")
		gatesdk.ErrServerError.WriteError(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")

	// Headers are not written until the upstream accepts the request, so a
	// pre-flight refusal or upstream error can still produce a JSON error.
	sink := &sseSink{w: w, flusher: flusher}
	if _, err := h.ProxyService.Stream(ctx, p, reqID, body, sink); err != nil {
		if !sink.wrote {
			writeProxyError(w, err)
			return
		}
		// Bytes already went out; nothing sane to send but a log line.
		log.Warn("stream failed after relay began", "error", err)
	}
}

// sseSink adapts the response writer into the proxy's StreamSink and tracks
// whether any bytes were relayed, which decides error rendering.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func (s *sseSink) Write(p []byte) (int, error) {
	s.wrote = true
	return s.w.Write(p)
}

func (s *sseSink) Flush() { s.flusher.Flush() }

// writeProxyError maps proxy failures onto API errors without leaking
// upstream internals.
func writeProxyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientCredits):
		gatesdk.ErrPaymentRequired.WriteError(w)
	case errors.Is(err, upstream.ErrUpstreamStatus):
		gatesdk.ErrUpstreamError.WriteError(w)
	default:
		gatesdk.ErrServerError.WriteError(w)
	}
}
