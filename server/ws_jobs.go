package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// wsWriteTimeout bounds each outbound frame so one stuck client
	// cannot wedge the feed goroutine
	wsWriteTimeout = 10 * time.Second

	// wsPingInterval keeps idle connections alive through proxies
	wsPingInterval = 30 * time.Second
)

// jobUpdateMessage is the wire envelope for the job feed
type jobUpdateMessage struct {
	Type string      `json:"type"`
	Job  interface{} `json:"job"`
}

// HandleJobsWebSocket streams job updates to a connected client. Every
// queue transition (enqueue, start, progress, completion) is pushed as a
// JSON message until the client disconnects.
// GET /ws/jobs
func (s *AdsyncServer) HandleJobsWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  2048,
		WriteBufferSize: 2048,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("Job feed WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates := s.Queue().Subscribe()
	defer s.Queue().Unsubscribe(updates)

	s.logger.Infow("Job feed client connected", "remote_addr", r.RemoteAddr)

	// Reader goroutine: we never expect client messages, but reading is
	// required to notice disconnects and process control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	for {
		select {
		case job := <-updates:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(jobUpdateMessage{Type: "job_update", Job: job}); err != nil {
				s.logger.Debugw("Job feed write failed, closing", "remote_addr", r.RemoteAddr, "error", err)
				return
			}
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.logger.Infow("Job feed client disconnected", "remote_addr", r.RemoteAddr)
			return
		case <-s.ctx.Done():
			return
		}
	}
}
