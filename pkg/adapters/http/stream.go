package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oapi-codegen/runtime"

	"github.com/bert-systems/canvas/pkg/domain"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// SubscribeParams narrows a notification stream.
type SubscribeParams struct {
	// NodeID keeps only notifications about one node. Validation reports always pass.
	NodeID *string `form:"node_id" json:"node_id,omitempty"`
	// Watch keeps only the listed notification kinds.
	Watch *[]string `form:"watch" json:"watch,omitempty"`
}

func bindSubscribeParams(r *http.Request) (SubscribeParams, error) {
	var params SubscribeParams
	if err := runtime.BindQueryParameter("form", true, false, "node_id", r.URL.Query(), &params.NodeID); err != nil {
		return params, fmt.Errorf("invalid node_id: %w", err)
	}
	if err := runtime.BindQueryParameter("form", false, false, "watch", r.URL.Query(), &params.Watch); err != nil {
		return params, fmt.Errorf("invalid watch: %w", err)
	}
	return params, nil
}

// Match reports whether a notification passes the filter.
func (p SubscribeParams) Match(n domain.Notification) bool {
	if p.Watch != nil && len(*p.Watch) > 0 && !slices.Contains(*p.Watch, string(n.Kind)) {
		return false
	}
	if p.NodeID != nil && *p.NodeID != "" && n.Kind != domain.NotifyValidation {
		if n.NodeID == *p.NodeID {
			return true
		}
		if n.Edge != nil && (n.Edge.SourceNodeID == *p.NodeID || n.Edge.TargetNodeID == *p.NodeID) {
			return true
		}
		return false
	}
	return true
}

// subscribeEvents streams notifications as server-sent events.
func (s *Server) subscribeEvents(w http.ResponseWriter, r *http.Request) {
	params, err := bindSubscribeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "BadRequest"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("subscribe events: streaming not supported")
		return
	}

	updates, cancel := s.canvas.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("sse client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("sse client disconnected", "remote", r.RemoteAddr)
			return
		case n, ok := <-updates:
			if !ok {
				return
			}
			if !params.Match(n) {
				continue
			}
			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Error("encode notification", "kind", n.Kind, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data)
			flusher.Flush()
		}
	}
}

// subscribeSocket streams notifications as JSON text frames over a websocket.
func (s *Server) subscribeSocket(w http.ResponseWriter, r *http.Request) {
	params, err := bindSubscribeParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "BadRequest"})
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := s.canvas.Subscribe()
	defer cancel()

	// The read loop only drains control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			s.logger.Info("websocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case n, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if !params.Match(n) {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				s.logger.Warn("websocket write failed", "err", err)
				return
			}
		}
	}
}
