package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSubmission() Submission {
	return Submission{
		Make:        "Toyota",
		Model:       "Camry",
		Year:        "2018",
		Mileage:     "64000",
		Price:       "17500",
		TitleStatus: "clean",
		Platforms:   []string{"craigslist", "facebook"},
		Images: []Attachment{
			{Filename: "front.jpg", ContentType: "image/jpeg", Data: []byte("jpegdata")},
		},
	}
}

func TestAnalyzeForwardsMultipartAndParsesResponse(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth, gotMake string
	var gotPlatforms []string
	var gotImages int
	var parseErr error
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if parseErr = r.ParseMultipartForm(32 << 20); parseErr == nil {
			gotMake = r.FormValue("make")
			gotPlatforms = r.MultipartForm.Value["platforms[]"]
			gotImages = len(r.MultipartForm.File["images[]"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test server
			"car_analysis":    map[string]any{"condition": "Excellent"},
			"analysis_result": map[string]any{"summary": "great car"},
		})
	}))
	defer srv.Close()

	p := NewAnalysisProxy(srv.URL, time.Minute, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "Bearer token-1")

	require.Equal(t, ClassOK, res.Classification)
	require.Equal(t, "/analyze", gotPath)
	require.NoError(t, parseErr)
	require.Equal(t, "Bearer token-1", gotAuth)
	require.Equal(t, "Toyota", gotMake)
	require.Equal(t, []string{"craigslist", "facebook"}, gotPlatforms)
	require.Equal(t, 1, gotImages)
	require.Contains(t, res.Payload, "car_analysis")
	require.Greater(t, res.Elapsed, time.Duration(0))
}

func TestAnalyzeForbiddenServesAuthPendingFallback(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewAnalysisProxy(srv.URL, time.Minute, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "")

	require.Equal(t, ClassDegraded, res.Classification)

	carAnalysis, ok := res.Payload["car_analysis"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, 0.85, carAnalysis["confidence"])
	require.Equal(t, "Good", carAnalysis["condition"])
	require.Equal(t, "Toyota", carAnalysis["make"])

	analysis, ok := res.Payload["analysis_result"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, []string{
		"Add more photos to increase buyer interest",
		"Include maintenance records if available",
		"Price competitively based on local market",
	}, analysis["recommendations"])
}

func TestAnalyzeOtherUpstreamErrorPreservesStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewAnalysisProxy(srv.URL, time.Minute, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "")

	require.Equal(t, ClassUpstreamError, res.Classification)
	require.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}

func TestAnalyzeUnauthorizedIsNotSynthesized(t *testing.T) {
	t.Parallel()

	// The stand-in branch is scoped to 403 exactly; 401 stays an error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewAnalysisProxy(srv.URL, time.Minute, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "")

	require.Equal(t, ClassUpstreamError, res.Classification)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
}

func TestAnalyzeTimeoutCancelsUpstream(t *testing.T) {
	t.Parallel()

	upstreamDone := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(upstreamDone)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewAnalysisProxy(srv.URL, 100*time.Millisecond, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "")

	require.Equal(t, ClassTimeout, res.Classification)
	require.NotEmpty(t, res.Err)

	// The in-flight upstream call must be cancelled, not left dangling.
	select {
	case <-upstreamDone:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled after timeout")
	}
}

func TestAnalyzeNetworkFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	p := NewAnalysisProxy(srv.URL, time.Minute, zap.NewNop())
	res := p.Analyze(context.Background(), testSubmission(), "")

	require.Equal(t, ClassUpstreamError, res.Classification)
}
