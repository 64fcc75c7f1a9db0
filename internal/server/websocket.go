package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/scanline/internal/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// WebSocketRequest is a text frame request. A binary frame is shorthand
// for {"image": <frame>} with the server defaults.
type WebSocketRequest struct {
	Image     []byte `json:"image"` // base64 in JSON
	Detect    *bool  `json:"det,omitempty"`
	Classify  *bool  `json:"cls,omitempty"`
	Recognize *bool  `json:"rec,omitempty"`
	Format    string `json:"format,omitempty"` // json (default), items or lines
}

// WebSocketResponse answers every request frame.
type WebSocketResponse struct {
	Type      string           `json:"type"` // "result" or "error"
	RequestID string           `json:"request_id"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Items     []pipeline.Item  `json:"items,omitempty"`
	Text      string           `json:"text,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	s.metrics.wsConnections.Inc()
	defer s.metrics.wsConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "request_id", RequestID(r.Context()))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	s.serveWebSocket(ctx, conn)
}

func (s *Server) serveWebSocket(ctx context.Context, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket read failed", "error", err)
			}
			return
		}
		s.metrics.wsMessages.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var req WebSocketRequest
		switch kind {
		case websocket.BinaryMessage:
			req.Image = data
		case websocket.TextMessage:
			if err := json.Unmarshal(data, &req); err != nil {
				s.sendWebSocket(conn, WebSocketResponse{Type: "error", RequestID: uuid.NewString(), Error: fmt.Sprintf("invalid request: %v", err)})
				continue
			}
		default:
			continue
		}
		s.sendWebSocket(conn, s.handleWebSocketRequest(ctx, req))
	}
}

func (s *Server) handleWebSocketRequest(ctx context.Context, req WebSocketRequest) WebSocketResponse {
	resp := WebSocketResponse{Type: "result", RequestID: uuid.NewString()}
	fail := func(format string, args ...any) WebSocketResponse {
		resp.Type, resp.Error = "error", fmt.Sprintf(format, args...)
		return resp
	}
	if len(req.Image) == 0 {
		return fail("no image data provided")
	}
	img, _, err := image.Decode(bytes.NewReader(req.Image))
	if err != nil {
		return fail("invalid image format")
	}

	opts := s.cfg.DefaultOptions
	if req.Detect != nil || req.Classify != nil || req.Recognize != nil {
		opts = pipeline.Options{Detect: deref(req.Detect), Classify: deref(req.Classify), Recognize: deref(req.Recognize)}
	}
	res, err := s.run(ctx, img, opts, "websocket")
	if err != nil {
		return fail("%v", err)
	}
	switch req.Format {
	case "", pipeline.FormatJSON:
		resp.Result = res
	case pipeline.FormatItems:
		resp.Items = res.Items()
	case pipeline.FormatLines:
		resp.Text = res.Text(s.cfg.RowThreshold)
	default:
		return fail("unsupported output format %q", req.Format)
	}
	return resp
}

func (s *Server) sendWebSocket(conn *websocket.Conn, resp WebSocketResponse) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(resp); err != nil {
		slog.Error("failed to send WebSocket message", "error", err)
		return
	}
	s.metrics.wsMessages.WithLabelValues("sent").Inc()
}

func deref(b *bool) bool { return b != nil && *b }
