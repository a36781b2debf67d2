package signal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	doctor   = domain.Principal{Role: domain.RoleDoctor, ID: 1}
	stranger = domain.Principal{Role: domain.RolePatient, ID: 99}
	pair12   = domain.Participants{DoctorID: 1, PatientID: 2}
)

func newService() *app.SignalingService {
	m := app.NewMetrics(prometheus.NewRegistry())
	reg := app.NewRegistry(m)
	store := core.NewMemoryStore(core.WithEvictHook(app.EvictHook(reg, m)))
	return app.NewSignalingService(store, app.ParticipantPolicy{}, reg, m)
}

func startWatchServer(t *testing.T, ctl *WatchController, pr domain.Principal, sid domain.SessionID) (*httptest.Server, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := ctl.Serve(ctx, w, r, pr, sid)
		if err != nil {
			w.WriteHeader(http.StatusForbidden)
		}
		errs <- err
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, errs
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Cleanup(func() { _ = ws.Close() })
	}
	return ws, err
}

func readEvent(t *testing.T, ws *websocket.Conn) domain.Event {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return ev
}

func TestWatch_StreamsEventsUntilEnd(t *testing.T) {
	svc := newService()
	sess, err := svc.CreateSession(doctor, pair12)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ctl := NewWatchController(svc, time.Second, 1024)
	srv, _ := startWatchServer(t, ctl, doctor, sess.ID)

	ws, err := dial(t, srv)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	ev := readEvent(t, ws)
	if ev.Type != domain.EventState || ev.State != domain.StateCreated {
		t.Fatalf("initial event = %+v", ev)
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.Watchers.Count(sess.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never bound")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := svc.SubmitOffer(doctor, sess.ID, "v=0 offer"); err != nil {
		t.Fatalf("offer: %v", err)
	}
	ev = readEvent(t, ws)
	if ev.Type != domain.EventOffer || ev.State != domain.StateOfferSet {
		t.Fatalf("offer event = %+v", ev)
	}

	if err := svc.EndSession(doctor, sess.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	ev = readEvent(t, ws)
	if ev.Type != domain.EventEnded || ev.Reason != domain.ReasonEnded {
		t.Fatalf("end event = %+v", ev)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestWatch_ForbiddenBeforeUpgrade(t *testing.T) {
	svc := newService()
	sess, err := svc.CreateSession(doctor, pair12)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	srv, errs := startWatchServer(t, NewWatchController(svc, time.Second, 1024), stranger, sess.ID)

	if _, err := dial(t, srv); err == nil {
		t.Fatal("dial should fail for a non participant")
	}
	select {
	case err := <-errs:
		if !errors.Is(err, app.ErrForbidden) {
			t.Fatalf("Serve error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return")
	}
	if n := svc.Watchers.Count(sess.ID); n != 0 {
		t.Fatalf("watchers = %d", n)
	}
}

func TestWsSignalConn_Backpressure(t *testing.T) {
	c := &WsSignalConn{send: make(chan core.Frame, 1)}
	if err := c.TrySend(core.Frame("a")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.TrySend(core.Frame("b")); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("second send = %v, want backpressure", err)
	}
	c.Close()
	c.Close()
	if err := c.TrySend(core.Frame("c")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("send after close = %v", err)
	}
}
