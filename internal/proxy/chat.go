package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/metrics"
)

// DefaultSystemPrompt is the fixed instruction injected ahead of every
// forwarded conversation.
const DefaultSystemPrompt = "You are a helpful assistant for a car listing " +
	"marketplace. Help users price, describe, and list their vehicles. " +
	"Keep answers short and practical."

// Message is one turn of a forwarded conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the validated inbound chat payload.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// Validate checks the message list without touching the network.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("messages are required")
	}
	for i, m := range r.Messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("message %d has empty content", i)
		}
	}
	return nil
}

// ChatProxy forwards a conversation to the LLM completion endpoint and
// pipes the token stream back to the caller without buffering.
type ChatProxy struct {
	client       *http.Client
	url          string
	model        string
	systemPrompt string
	logger       *zap.Logger
}

// NewChatProxy builds the streaming proxy. The HTTP client carries no
// overall timeout: stream lifetime is bounded by the caller's connection,
// whose context cancels the upstream call on disconnect.
func NewChatProxy(url, model, systemPrompt string, logger *zap.Logger) *ChatProxy {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return &ChatProxy{
		client:       &http.Client{},
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

type completionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// Stream forwards the conversation and relays the response body to w as
// it arrives. The first upstream byte reaches the caller before the
// stream completes. authorization, when non-empty, is passed through
// unmodified; its absence is not an error here, the downstream decides.
func (p *ChatProxy) Stream(r *http.Request, req ChatRequest, w http.ResponseWriter) {
	ctx := r.Context()

	body := completionRequest{
		Model:    p.model,
		Messages: append([]Message{{Role: "system", Content: p.systemPrompt}}, req.Messages...),
		Stream:   true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		p.logger.Error("marshal completion request", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	upstream, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		p.logger.Error("build completion request", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	upstream.Header.Set("Content-Type", "application/json")
	upstream.Header.Set("Accept", "text/event-stream")
	if auth := r.Header.Get("Authorization"); auth != "" {
		upstream.Header.Set("Authorization", auth)
	}

	resp, err := p.client.Do(upstream)
	if err != nil {
		// Caller disconnects cancel the context; that is not an upstream
		// failure worth a 502.
		if ctx.Err() != nil {
			metrics.ObserveProxy("chat", string(ClassTimeout), 0)
			return
		}
		p.logger.Error("completion endpoint unreachable", zap.Error(err))
		metrics.ObserveProxy("chat", string(ClassUpstreamError), 0)
		http.Error(w, "completion service unavailable", http.StatusBadGateway)
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("close upstream stream", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Preserve the upstream status so the programmatic caller can
		// decide whether to retry.
		metrics.ObserveProxy("chat", string(classifyStatus(resp.StatusCode)), 0)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		if _, copyErr := io.Copy(w, resp.Body); copyErr != nil {
			p.logger.Warn("relay upstream error body", zap.Error(copyErr))
		}
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/event-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Caller went away; closing resp.Body via defer releases
				// the upstream stream.
				p.logger.Debug("caller disconnected mid-stream", zap.Error(writeErr))
				metrics.ObserveProxy("chat", string(ClassOK), 0)
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if readErr != io.EOF && ctx.Err() == nil {
				p.logger.Warn("upstream stream ended abnormally", zap.Error(readErr))
			}
			metrics.ObserveProxy("chat", string(ClassOK), 0)
			return
		}
	}
}

func classifyStatus(code int) Classification {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ClassAuthRequired
	default:
		return ClassUpstreamError
	}
}
