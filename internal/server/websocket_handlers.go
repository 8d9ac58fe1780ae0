package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MeKo-Tech/labelscan/internal/nutrition"
	"github.com/MeKo-Tech/labelscan/internal/source"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketScanRequest is one scan request sent by a client. Image is
// base64 in JSON. Tokens accepts the same shapes as POST /scan/tokens.
type WebSocketScanRequest struct {
	Type   string          `json:"type"` // "image" or "tokens"
	ID     string          `json:"id,omitempty"`
	Image  []byte          `json:"image,omitempty"`
	Tokens json.RawMessage `json:"tokens,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketScanResponse is sent for every request: once with status
// "processing", then once with "completed" or "error".
type WebSocketScanResponse struct {
	Type      string            `json:"type"`
	Status    string            `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	Result    *nutrition.Result `json:"result,omitempty"`
	Cached    bool              `json:"cached,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorType string            `json:"error_type,omitempty"`
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin admits same-host requests, requests without an Origin header
// and the configured CORS origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.cfg.CORSOrigin == "*" || origin == s.cfg.CORSOrigin {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// scanWebSocketHandler handles WebSocket connections for streaming scans.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	// The upgrade response is written by the hijacker, so headers set by
	// middleware must be passed explicitly.
	hdr := http.Header{}
	if id := requestIDFrom(r.Context()); id != "" {
		hdr.Set(RequestIDHeader, id)
	}
	conn, err := s.upgrader().Upgrade(w, r, hdr)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established",
		"remote_addr", r.RemoteAddr,
		"request_id", requestIDFrom(r.Context()))
	s.handleWebSocketConnection(r.Context(), conn)
}

func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket closed unexpectedly", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
		}
	}
}

// handleWebSocketMessage processes one request and writes its responses.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	requestID := req.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "scan_response",
		Status:    "processing",
		RequestID: requestID,
	})

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()

	switch req.Type {
	case "image":
		s.processWebSocketImage(ctx, conn, req, requestID)
	case "tokens":
		s.processWebSocketTokens(ctx, conn, req, requestID)
	default:
		s.sendWebSocketError(conn, requestID, "invalid_request", "Unsupported request type: "+req.Type)
	}
}

func (s *Server) processWebSocketImage(ctx context.Context, conn WebSocketConnWriter, req WebSocketScanRequest, requestID string) {
	if len(req.Image) == 0 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "No image data provided")
		return
	}
	if int64(len(req.Image)) > s.maxUploadBytes() {
		s.sendWebSocketError(conn, requestID, "invalid_request", "Image too large")
		return
	}
	if s.pipeline == nil || !s.pipeline.HasImageSource() {
		s.sendWebSocketError(conn, requestID, "unavailable", "No detection source configured")
		return
	}

	start := time.Now()
	out, err := s.pipeline.Run(ctx, req.Image)
	scanDuration.WithLabelValues("websocket_image").Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("websocket_image", "error").Inc()
		s.sendWebSocketError(conn, requestID, "processing_error", err.Error())
		return
	}
	s.recordResult("websocket_image", out.Result, out.Cached)
	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "scan_response",
		Status:    "completed",
		RequestID: requestID,
		Result:    out.Result,
		Cached:    out.Cached,
	})
}

func (s *Server) processWebSocketTokens(ctx context.Context, conn WebSocketConnWriter, req WebSocketScanRequest, requestID string) {
	if len(req.Tokens) == 0 {
		s.sendWebSocketError(conn, requestID, "invalid_request", "No tokens provided")
		return
	}
	tokens, err := source.ParseTokens(req.Tokens, source.FormatJSON)
	if err != nil {
		s.sendWebSocketError(conn, requestID, "invalid_request", err.Error())
		return
	}
	if s.pipeline == nil {
		s.sendWebSocketError(conn, requestID, "unavailable", "Pipeline not initialized")
		return
	}

	start := time.Now()
	res, _, err := s.pipeline.AnalyzeTokens(ctx, tokens)
	scanDuration.WithLabelValues("websocket_tokens").Observe(time.Since(start).Seconds())
	if err != nil {
		scansTotal.WithLabelValues("websocket_tokens", "error").Inc()
		s.sendWebSocketError(conn, requestID, "processing_error", err.Error())
		return
	}
	s.recordResult("websocket_tokens", res, false)
	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "scan_response",
		Status:    "completed",
		RequestID: requestID,
		Result:    res,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketScanResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketScanResponse{
		Type:      "error",
		Status:    "error",
		RequestID: requestID,
		Error:     message,
		ErrorType: errorType,
	})
}
