package ports

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Amund211/deckcache/internal/app"
	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/ratelimiting"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type subscribeMessage struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

func MakeSubscribeHandler(
	subscribe app.SubscribeResource,
	allowedOrigins *DomainSuffixes,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	// NOTE: Lives for the lifetime of the process
	rateLimiter, _ := ratelimiting.NewStandardRateLimiter()

	middleware := buildMiddleware("subscribe", allowedOrigins, rootLogger, sentryMiddleware, rateLimiter)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedOrigins.AnyMatch(origin)
		},
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		h, _, err := subscribe(ctx, r.URL.Query().Get("path"), upstreamRequest(r))
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		defer h.Close()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already responded
			logger.WarnContext(ctx, "Websocket upgrade failed", "error", err.Error())
			return
		}
		defer conn.Close()

		// Drain the connection so pongs and close frames are handled
		closed := make(chan struct{})
		conn.SetReadLimit(1024)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		dataUpdates, unsubscribeData := h.Data().Subscribe()
		defer unsubscribeData()
		errUpdates, unsubscribeErr := h.Err().Subscribe()
		defer unsubscribeErr()

		pingTicker := time.NewTicker(pingPeriod)
		defer pingTicker.Stop()

		var message subscribeMessage
		send := func() bool {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(message); err != nil {
				logger.InfoContext(ctx, "Subscriber went away", "error", err.Error())
				return false
			}
			return true
		}

		logger.InfoContext(ctx, "Subscriber connected", "key", h.Key())
		for {
			select {
			case <-closed:
				logger.InfoContext(ctx, "Subscriber disconnected", "key", h.Key())
				return
			case data, ok := <-dataUpdates:
				if !ok {
					return
				}
				message.Data = data
				if !send() {
					return
				}
			case err, ok := <-errUpdates:
				if !ok {
					return
				}
				message.Error = errorMessage(err)
				if !send() {
					return
				}
			case <-pingTicker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}

	return middleware(handler)
}
