package live

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Anup697028/mediwise-chat/internal/platform/auth"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxInbound = 512
)

// Handler upgrades authenticated requests to a live event stream.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts handshakes from allowedOrigins. An empty list, or a
// request without an Origin header, is accepted.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				return contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group, session echo.MiddlewareFunc) {
	api.GET("/live", h.Connect, session)
}

// Connect streams the caller's events until either side closes.
func (h *Handler) Connect(c echo.Context) error {
	userID := auth.UserIDFromContext(c.Request().Context())
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		return nil
	}
	cl := h.hub.register(userID)
	if cl == nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		return ws.Close()
	}
	h.hub.logger.Debug().Str("user_id", userID).Msg("live client connected")

	go h.writePump(cl, ws)
	h.readPump(cl, ws)
	return nil
}

// readPump discards inbound frames and keeps the read deadline fresh. It
// returns when the client goes away.
func (h *Handler) readPump(cl *client, ws *websocket.Conn) {
	defer func() {
		h.hub.unregister(cl)
		ws.Close()
	}()
	ws.SetReadLimit(maxInbound)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.hub.logger.Debug().Err(err).Str("user_id", cl.userID).Msg("live client read failed")
			}
			return
		}
	}
}

func (h *Handler) writePump(cl *client, ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
