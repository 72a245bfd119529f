package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/kozaktomas/sketch-match/internal/retrieval"
)

// setupSSEConnection sets the event stream headers.
// On failure it writes an error response and returns false.
func setupSSEConnection(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return flusher, true
}

// streamSnapshots sends the current snapshot and every transition after it,
// stopping at a terminal state, client disconnect or listener close.
func streamSnapshots(w http.ResponseWriter, r *http.Request, flusher http.Flusher, tracker *retrieval.Tracker) {
	ch, current := tracker.Subscribe()
	defer tracker.Unsubscribe(ch)

	sendSSEEvent(w, flusher, string(current.State), current)
	if current.State.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, string(snap.State), snap)
			if snap.State.Terminal() {
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}
