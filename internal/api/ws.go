package api

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/basket/taskd/internal/bus"
)

// wsEvent is the wire shape of one task lifecycle event.
type wsEvent struct {
	Topic    string    `json:"topic"`
	TaskID   int64     `json:"task_id"`
	Status   string    `json:"status,omitempty"`
	TraceID  string    `json:"trace_id,omitempty"`
	Affected int       `json:"affected,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// handleWS streams task lifecycle events to a websocket client. The client
// is read-only; anything it sends besides close/ping is ignored.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowOrigins,
	})
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	sub := s.bus.Subscribe("task.")
	defer s.bus.Unsubscribe(sub)

	// CloseRead keeps control frames flowing and cancels the context when
	// the client goes away.
	ctx := conn.CloseRead(r.Context())
	s.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			if err := s.forwardEvent(ctx, conn, ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) forwardEvent(ctx context.Context, conn *websocket.Conn, ev bus.Event) error {
	payload, ok := ev.Payload.(bus.TaskEvent)
	if !ok {
		return nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, wsEvent{
		Topic:    ev.Topic,
		TaskID:   payload.TaskID,
		Status:   payload.Status,
		TraceID:  payload.TraceID,
		Affected: payload.Affected,
		SentAt:   time.Now().UTC(),
	})
}
