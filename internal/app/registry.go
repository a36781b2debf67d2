package app

import (
	"sync"

	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type WatcherID string

type watchEntry struct {
	Principal domain.Principal
	Conn      core.SignalConnection
}

// Registry tracks push watchers per session and fans events out to them.
// It never owns session state; a slow watcher is dropped, never waited for.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]map[WatcherID]*watchEntry
	metrics  *Metrics
}

func NewRegistry(m *Metrics) *Registry {
	return &Registry{
		sessions: make(map[domain.SessionID]map[WatcherID]*watchEntry),
		metrics:  m,
	}
}

func (r *Registry) Bind(sid domain.SessionID, pr domain.Principal, conn core.SignalConnection) WatcherID {
	wid := WatcherID(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.sessions[sid]
	if !ok {
		ws = make(map[WatcherID]*watchEntry)
		r.sessions[sid] = ws
	}
	ws[wid] = &watchEntry{Principal: pr, Conn: conn}
	if r.metrics != nil {
		r.metrics.watchers.Inc()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("wid", string(wid)).
		Str("principal", pr.String()).Msg("bound watcher")
	return wid
}

func (r *Registry) Unbind(sid domain.SessionID, wid WatcherID) {
	r.mu.Lock()
	e, ok := r.take(sid, wid)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.Conn.Close()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("wid", string(wid)).Msg("unbind watcher")
}

// take removes a watcher; caller holds mu.
func (r *Registry) take(sid domain.SessionID, wid WatcherID) (*watchEntry, bool) {
	ws, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	e, ok := ws[wid]
	if !ok {
		return nil, false
	}
	delete(ws, wid)
	if len(ws) == 0 {
		delete(r.sessions, sid)
	}
	if r.metrics != nil {
		r.metrics.watchers.Dec()
	}
	return e, true
}

func (r *Registry) Count(sid domain.SessionID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sid])
}

// Publish sends ev to every watcher of its session.
func (r *Registry) Publish(ev domain.Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("marshal event")
		return
	}

	r.mu.RLock()
	var slow []WatcherID
	for wid, e := range r.sessions[ev.SessionID] {
		if err := e.Conn.TrySend(frame); err != nil {
			slow = append(slow, wid)
		}
	}
	r.mu.RUnlock()

	for _, wid := range slow {
		log.Warn().Str("module", "app.registry").Str("sid", string(ev.SessionID)).Str("wid", string(wid)).Msg("dropping slow watcher")
		r.Unbind(ev.SessionID, wid)
	}
}

// CloseSession publishes the final event and disconnects all watchers of sid.
func (r *Registry) CloseSession(sid domain.SessionID, final domain.Event) {
	r.Publish(final)

	r.mu.Lock()
	ws := r.sessions[sid]
	delete(r.sessions, sid)
	if r.metrics != nil {
		r.metrics.watchers.Sub(float64(len(ws)))
	}
	r.mu.Unlock()

	for _, e := range ws {
		e.Conn.Close()
	}
	if len(ws) > 0 {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("watchers", len(ws)).Msg("closed session watchers")
	}
}
