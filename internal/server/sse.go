package server

import (
	"fmt"
	"net/http"
)

// handleSSE streams reload events to connected browsers.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan struct{}, 1)
	s.clientMu.Lock()
	s.clients[clientChan] = struct{}{}
	s.clientMu.Unlock()

	defer func() {
		s.clientMu.Lock()
		delete(s.clients, clientChan)
		s.clientMu.Unlock()
	}()

	_, _ = fmt.Fprintf(w, "data: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-clientChan:
			_, _ = fmt.Fprintf(w, "data: reload\n\n")
			flusher.Flush()
		}
	}
}

// broadcastReload signals every connected client. Clients with a full
// buffer are skipped, not blocked on.
func (s *Server) broadcastReload() {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()
	for clientChan := range s.clients {
		select {
		case clientChan <- struct{}{}:
		default:
		}
	}
}
