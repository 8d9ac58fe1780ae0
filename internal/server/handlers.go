package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/MeKo-Tech/labelscan/internal/utils"
)

const (
	formatJSON    = "json"
	formatText    = "text"
	formatCSV     = "csv"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	response := HealthResponse{
		Status:  "healthy",
		Version: s.cfg.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.pipeline != nil {
		if src, ok := s.pipeline.Info()["source"].(string); ok {
			response.Source = src
		}
	}
	s.writeJSON(w, http.StatusOK, response)
}

// fieldsHandler lists the recognised nutrition fields.
func (s *Server) fieldsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	table := s.fields
	if table == nil {
		table = nutrition.DefaultFields()
	}
	list := make([]FieldInfo, 0, len(table))
	for _, f := range table {
		list = append(list, FieldInfo{
			Name:     string(f.Type),
			Keywords: f.Keywords,
			Min:      f.Min,
			Max:      f.Max,
			Priority: f.Priority,
		})
	}
	s.writeJSON(w, http.StatusOK, FieldsResponse{Fields: list, Count: len(list)})
}

// infoHandler reports pipeline settings and counters.
func (s *Server) infoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, r, "Pipeline not initialized", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, s.pipeline.Info())
}

// scanImageHandler scans an uploaded label photo.
func (s *Server) scanImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil || !s.pipeline.HasImageSource() {
		s.writeErrorResponse(w, r, "No detection source configured", http.StatusServiceUnavailable)
		return
	}

	limit := s.maxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, r, "File too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, r, "Failed to parse form data", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		s.writeErrorResponse(w, r, "No image file provided", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, r, "Failed to read image data", http.StatusInternalServerError)
		return
	}
	uploadSizeBytes.Observe(float64(header.Size))

	format := requestFormat(r)
	if format == formatOverlay && !s.cfg.OverlayEnabled {
		s.writeErrorResponse(w, r, "Overlay output disabled", http.StatusForbidden)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	start := time.Now()
	out, err := s.pipeline.Run(ctx, data)
	scanDuration.WithLabelValues("image").Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("image", scanStatus(false, err)).Inc()
		s.writeScanError(w, r, err)
		return
	}
	s.recordResult("image", out.Result, out.Cached)

	if format == formatOverlay {
		s.writeOverlay(w, r, out)
		return
	}
	resp := ScanResponse{
		RequestID:  requestIDFrom(r.Context()),
		Result:     out.Result,
		Source:     out.Source,
		Cached:     out.Cached,
		DurationMs: durationMs(out.Duration),
		Image: &ImageInfo{
			Format: out.Metadata.Format,
			Width:  out.Metadata.Width,
			Height: out.Metadata.Height,
			Bytes:  out.Metadata.SizeBytes,
		},
	}
	s.writeResult(w, r, format, resp)
}

// scanTokensHandler scans a token list posted as JSON.
func (s *Server) scanTokensHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.pipeline == nil {
		s.writeErrorResponse(w, r, "Pipeline not initialized", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxUploadBytes()))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, r, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		s.writeErrorResponse(w, r, "Failed to read request body", http.StatusBadRequest)
		return
	}
	tokens, err := source.ParseTokens(body, source.FormatJSON)
	if err != nil {
		s.writeErrorResponse(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	format := requestFormat(r)
	if format == formatOverlay {
		s.writeErrorResponse(w, r, "Overlay output requires an image", http.StatusBadRequest)
		return
	}

	start := time.Now()
	res, _, err := s.pipeline.AnalyzeTokens(r.Context(), tokens)
	elapsed := time.Since(start)
	scanDuration.WithLabelValues("tokens").Observe(elapsed.Seconds())
	if err != nil {
		scansTotal.WithLabelValues("tokens", scanStatus(false, err)).Inc()
		s.writeScanError(w, r, err)
		return
	}
	s.recordResult("tokens", res, false)

	s.writeResult(w, r, format, ScanResponse{
		RequestID:  requestIDFrom(r.Context()),
		Result:     res,
		Source:     "tokens",
		DurationMs: durationMs(elapsed),
	})
}

func (s *Server) recordResult(kind string, res *nutrition.Result, cached bool) {
	scansTotal.WithLabelValues(kind, scanStatus(res.Success, nil)).Inc()
	if res.Success {
		fieldsDetected.WithLabelValues(kind).Observe(float64(res.FieldCount()))
	}
	if cached {
		cacheHits.WithLabelValues(kind).Inc()
	}
}

// writeScanError maps pipeline errors onto HTTP statuses.
func (s *Server) writeScanError(w http.ResponseWriter, r *http.Request, err error) {
	var procErr *utils.ImageProcessingError
	switch {
	case errors.Is(err, utils.ErrUnsupportedImage), errors.As(err, &procErr):
		s.writeErrorResponse(w, r, "Invalid image: "+err.Error(), http.StatusBadRequest)
	case errors.Is(err, pipeline.ErrNoSource):
		s.writeErrorResponse(w, r, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeErrorResponse(w, r, "Scan timed out", http.StatusGatewayTimeout)
	case errors.Is(err, context.Canceled):
		s.logger.Info("Client cancelled scan", "request_id", requestIDFrom(r.Context()))
	default:
		s.logger.Error("Scan failed", "request_id", requestIDFrom(r.Context()), "error", err)
		s.writeErrorResponse(w, r, fmt.Sprintf("Scan failed: %v", err), http.StatusInternalServerError)
	}
}

// writeResult renders a scan response in the requested format.
func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, format string, resp ScanResponse) {
	table := s.fields
	if table == nil {
		table = nutrition.DefaultFields()
	}
	switch format {
	case formatText:
		txt, err := nutrition.ToPlainText(resp.Result, table)
		if err != nil {
			s.writeErrorResponse(w, r, "Formatting failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, txt+"\n")
	case formatCSV:
		out, err := nutrition.ToCSV(resp.Result, table)
		if err != nil {
			s.writeErrorResponse(w, r, "Formatting failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, out)
	default:
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// writeOverlay renders the selected label/value pairs onto the working image.
func (s *Server) writeOverlay(w http.ResponseWriter, r *http.Request, out *pipeline.Outcome) {
	style := s.cfg.Overlay
	if c, ok := utils.ParseHexColor(r.FormValue("label_color")); ok {
		style.LabelColor = c
	}
	if c, ok := utils.ParseHexColor(r.FormValue("value_color")); ok {
		style.ValueColor = c
	}
	ov := pipeline.RenderOverlay(out.Image, out.Analysis, style)
	if ov == nil {
		s.writeErrorResponse(w, r, "Overlay failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Scan-Success", fmt.Sprint(out.Result.Success))
	if err := png.Encode(w, ov); err != nil {
		s.logger.Error("Failed to encode overlay", "error", err)
	}
}

// requestFormat reads the output format from the form or query string.
func requestFormat(r *http.Request) string {
	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == "" && r.FormValue("overlay") == "1" {
		return formatOverlay
	}
	if format == "" {
		return formatJSON
	}
	return format
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{
		Success:   false,
		Error:     message,
		RequestID: requestIDFrom(r.Context()),
	})
}
