package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/torqlist/leadgate/internal/pipeline"
	"github.com/torqlist/leadgate/internal/proxy"
	"github.com/torqlist/leadgate/internal/signup"
)

// maxUploadBytes caps the buffered multipart body for listing analysis.
const maxUploadBytes = 32 << 20

type signupResponse struct {
	Success       bool           `json:"success"`
	Message       string         `json:"message"`
	Data          *signup.Stored `json:"data,omitempty"`
	AlreadyExists bool           `json:"already_exists,omitempty"`
	Warning       string         `json:"warning,omitempty"`
	Note          string         `json:"note,omitempty"`
}

func (s *Server) captureSignup(w http.ResponseWriter, r *http.Request) {
	var payload signup.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	payload.IPAddress = clientIP(r)
	payload.UserAgent = r.UserAgent()
	payload.Referrer = r.Referer()

	res := s.pipeline.Capture(r.Context(), payload)
	if !res.Success {
		if res.Outcome == pipeline.OutcomeInvalid {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"error":   res.Message,
				"details": res.Fields,
			})
			return
		}
		s.writeError(w, http.StatusServiceUnavailable, res.Message)
		return
	}

	status := http.StatusCreated
	if res.AlreadyExists {
		status = http.StatusOK
	}
	s.writeJSON(w, status, signupResponse{
		Success:       true,
		Message:       res.Message,
		Data:          res.Record,
		AlreadyExists: res.AlreadyExists,
		Warning:       res.Warning,
		Note:          res.Note,
	})
}

func (s *Server) lookupSignup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if strings.TrimSpace(email) == "" {
		s.writeError(w, http.StatusBadRequest, "email query parameter is required")
		return
	}
	stored, err := s.pipeline.Lookup(r.Context(), email)
	if err != nil {
		s.logger.Error("signup lookup failed", zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "signup storage is unavailable, please try again")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"exists": stored != nil,
		"data":   stored,
	})
}

func (s *Server) chatCompletion(w http.ResponseWriter, r *http.Request) {
	var req proxy.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.chat.Stream(r, req, w)
}

func (s *Server) analyzeListing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sub := proxy.Submission{
		Make:         r.FormValue("make"),
		Model:        r.FormValue("model"),
		Year:         r.FormValue("year"),
		Mileage:      r.FormValue("mileage"),
		Price:        r.FormValue("price"),
		TitleStatus:  r.FormValue("titleStatus"),
		AboutVehicle: r.FormValue("aboutVehicle"),
		Platforms:    formValues(r, "platforms[]", "platforms"),
	}

	if r.MultipartForm != nil {
		files := r.MultipartForm.File["images[]"]
		if len(files) == 0 {
			files = r.MultipartForm.File["images"]
		}
		for _, header := range files {
			f, err := header.Open()
			if err != nil {
				s.writeError(w, http.StatusBadRequest, "unreadable image upload")
				return
			}
			data, err := io.ReadAll(f)
			closeErr := f.Close()
			if err != nil || closeErr != nil {
				s.writeError(w, http.StatusBadRequest, "unreadable image upload")
				return
			}
			sub.Images = append(sub.Images, proxy.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	// Archive uploads off the request path; an archive failure never
	// changes the analysis outcome.
	if len(sub.Images) > 0 {
		go s.archiveImages(context.WithoutCancel(r.Context()), sub.Images)
	}

	res := s.analyzer.Analyze(r.Context(), sub, r.Header.Get("Authorization"))
	totalMS := res.Elapsed.Milliseconds()

	switch res.Classification {
	case proxy.ClassOK, proxy.ClassDegraded:
		body := map[string]any{
			"success":          true,
			"platforms":        sub.Platforms,
			"processing_times": map[string]any{"analysis_ms": totalMS},
			"total_time_ms":    totalMS,
		}
		// Backend-provided fields win, including its own processing_times.
		for k, v := range res.Payload {
			body[k] = v
		}
		s.writeJSON(w, http.StatusOK, body)
	case proxy.ClassTimeout:
		s.writeJSON(w, http.StatusGatewayTimeout, map[string]any{
			"success":       false,
			"error":         "analysis timed out",
			"details":       res.Err,
			"total_time_ms": totalMS,
		})
	default:
		status := res.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		s.writeJSON(w, status, map[string]any{
			"success":       false,
			"error":         "analysis failed",
			"details":       res.Err,
			"total_time_ms": totalMS,
		})
	}
}

func (s *Server) archiveImages(ctx context.Context, images []proxy.Attachment) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	prefix := time.Now().UTC().Format("2006/01/02")
	for i, img := range images {
		name := path.Base(img.Filename)
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("image-%d", i)
		}
		key := path.Join(prefix, fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))
		uri, err := s.archive.Put(ctx, key, img.ContentType, bytes.NewReader(img.Data))
		if err != nil {
			s.logger.Warn("archive upload failed", zap.String("file", img.Filename), zap.Error(err))
			continue
		}
		if uri != "" {
			s.logger.Debug("archived upload", zap.String("uri", uri))
		}
	}
}

func formValues(r *http.Request, keys ...string) []string {
	for _, key := range keys {
		if vals := r.Form[key]; len(vals) > 0 {
			return vals
		}
	}
	return nil
}

// clientIP prefers the first X-Forwarded-For hop, matching how the
// service sits behind a fronting proxy in deployment.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
