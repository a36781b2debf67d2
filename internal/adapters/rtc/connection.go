package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const dataChannelLabel = "callrelay"

var ErrUnexpectedSDPType = errors.New("unexpected session description type")

func DefaultConfig(iceServers ...string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

// NewAPI builds a pion API whose logs go through factory. A nil factory keeps pion's default.
func NewAPI(factory logging.LoggerFactory) *webrtc.API {
	se := webrtc.SettingEngine{}
	if factory != nil {
		se.LoggerFactory = factory
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// Connection is one side of a call negotiated through the relay. Session
// descriptions travel as JSON-encoded RTCSessionDescription, the same shape a
// browser produces with JSON.stringify(offer).
type Connection struct {
	pc  *webrtc.PeerConnection
	tag string

	mu          sync.Mutex
	onCandidate func(domain.CandidateInit)
	early       []domain.CandidateInit
	remoteSet   bool

	connected        chan struct{}
	connectedOnce    sync.Once
	disconnected     chan struct{}
	disconnectedOnce sync.Once
}

func NewConnection(api *webrtc.API, cfg webrtc.Configuration, tag string) (*Connection, error) {
	if api == nil {
		api = webrtc.NewAPI()
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	c := &Connection{
		pc:           pc,
		tag:          tag,
		connected:    make(chan struct{}),
		disconnected: make(chan struct{}),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		c.mu.Lock()
		fn := c.onCandidate
		c.mu.Unlock()
		if fn != nil {
			fn(domain.CandidateInit{Candidate: ci.Candidate, SDPMid: ci.SDPMid, SDPMLineIndex: ci.SDPMLineIndex})
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("peer", tag).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.connectedOnce.Do(func() { close(c.connected) })
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.disconnectedOnce.Do(func() { close(c.disconnected) })
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Debug().Str("module", "webrtc").Str("peer", tag).Str("label", dc.Label()).Msg("remote data channel")
	})
	return c, nil
}

// CreateOffer opens the data channel and returns the local offer. Candidates
// trickle through OnLocalCandidate afterwards.
func (c *Connection) CreateOffer() (string, error) {
	if _, err := c.pc.CreateDataChannel(dataChannelLabel, nil); err != nil {
		return "", fmt.Errorf("create data channel: %w", err)
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return encodeSDP(offer)
}

// AcceptOffer applies a remote offer and returns the local answer.
func (c *Connection) AcceptOffer(payload string) (string, error) {
	if err := c.applyRemote(payload, webrtc.SDPTypeOffer); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return encodeSDP(answer)
}

func (c *Connection) AcceptAnswer(payload string) error {
	return c.applyRemote(payload, webrtc.SDPTypeAnswer)
}

func (c *Connection) applyRemote(payload string, want webrtc.SDPType) error {
	var sd webrtc.SessionDescription
	if err := json.Unmarshal([]byte(payload), &sd); err != nil {
		return fmt.Errorf("decode session description: %w", err)
	}
	if sd.Type != want {
		return fmt.Errorf("%w: got %s, want %s", ErrUnexpectedSDPType, sd.Type, want)
	}
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return err
	}

	c.mu.Lock()
	c.remoteSet = true
	early := c.early
	c.early = nil
	c.mu.Unlock()

	for _, ci := range early {
		if err := c.addICE(ci); err != nil {
			log.Warn().Err(err).Str("module", "webrtc").Str("peer", c.tag).Msg("queued candidate rejected")
		}
	}
	return nil
}

// AddRemoteCandidate applies a candidate, holding it until the remote description is set.
func (c *Connection) AddRemoteCandidate(ci domain.CandidateInit) error {
	if ci.Candidate == "" {
		return nil
	}
	c.mu.Lock()
	if !c.remoteSet {
		c.early = append(c.early, ci)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.addICE(ci)
}

func (c *Connection) addICE(ci domain.CandidateInit) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

func (c *Connection) OnLocalCandidate(fn func(domain.CandidateInit)) {
	c.mu.Lock()
	c.onCandidate = fn
	c.mu.Unlock()
}

func (c *Connection) Connected() <-chan struct{} { return c.connected }

func (c *Connection) Disconnected() <-chan struct{} { return c.disconnected }

func (c *Connection) Close() error {
	err := c.pc.Close()
	c.disconnectedOnce.Do(func() { close(c.disconnected) })
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("peer", c.tag).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("peer", c.tag).Msg("closed")
	}
	return err
}

func encodeSDP(sd webrtc.SessionDescription) (string, error) {
	b, err := json.Marshal(sd)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
