package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const sendBuffer = 32

// WatchController streams session events to a websocket. The socket is a hint
// channel only; clients still read state through the REST endpoints.
type WatchController struct {
	Svc        *app.SignalingService
	PingPeriod time.Duration
	ReadLimit  int64
}

func NewWatchController(svc *app.SignalingService, pingPeriod time.Duration, readLimit int64) *WatchController {
	if pingPeriod <= 0 {
		pingPeriod = 30 * time.Second
	}
	if readLimit <= 0 {
		readLimit = 4096
	}
	return &WatchController{Svc: svc, PingPeriod: pingPeriod, ReadLimit: readLimit}
}

// WsSignalConn is the core.SignalConnection for one watcher. Close only shuts
// the send queue; writePump drains it and closes the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWsSignalConn(ws *websocket.Conn) *WsSignalConn {
	return &WsSignalConn{conn: ws, send: make(chan core.Frame, sendBuffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve authorizes pr for sid and upgrades the request. Errors returned are
// pre-upgrade and should be written as a regular HTTP response.
func (ctl *WatchController) Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, pr domain.Principal, sid domain.SessionID) error {
	if _, err := ctl.Svc.GetSession(pr, sid); err != nil {
		return err
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ws upgrade")
		return nil
	}

	conn := newWsSignalConn(ws)
	wid, sess, err := ctl.Svc.Watch(pr, sid, conn)
	if err != nil {
		// Session ended between the check and the bind.
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, app.ErrorCode(err))
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
		return nil
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("wid", string(wid)).Msg("new WS watcher")

	if frame, err := json.Marshal(domain.Event{Type: domain.EventState, SessionID: sid, State: sess.State}); err == nil {
		_ = conn.TrySend(frame)
	}

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go ctl.readPump(cancel, sid, wid, conn)
	return nil
}
