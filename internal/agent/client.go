package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	headerPrincipalRole = "X-Principal-Role"
	headerPrincipalID   = "X-Principal-ID"
	apiPrefix           = "/api/webrtc"
)

// APIError is a non-2xx relay response. It unwraps to the matching core or
// app sentinel when the code is known.
type APIError struct {
	Status  int
	Code    string
	Message string
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.err }

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	Identical *bool  `json:"identical"`
}

// Client talks to the relay REST API as a single principal.
type Client struct {
	base      *url.URL
	principal domain.Principal
	http      *http.Client
	dialer    *websocket.Dialer
}

func NewClient(baseURL string, pr domain.Principal) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("relay url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay url: unsupported scheme %q", u.Scheme)
	}
	return &Client{
		base:      u,
		principal: pr,
		http:      &http.Client{Timeout: 10 * time.Second},
		dialer:    &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + apiPrefix + path
}

func (c *Client) setPrincipal(h http.Header) {
	h.Set(headerPrincipalRole, string(c.principal.Role))
	h.Set(headerPrincipalID, strconv.FormatInt(c.principal.ID, 10))
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setPrincipal(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode >= 300 {
		return decodeError(op, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}

func decodeError(op string, status int, raw []byte) error {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		eb.Message = strings.TrimSpace(string(raw))
	}
	apiErr := &APIError{Status: status, Code: eb.Error, Message: eb.Message}
	switch eb.Error {
	case core.CodeDuplicateActiveSession:
		apiErr.err = &core.DuplicateSessionError{Existing: eb.SessionID}
	case core.CodeAlreadySet:
		apiErr.err = &core.PayloadConflictError{Kind: op, Identical: eb.Identical != nil && *eb.Identical}
	case app.CodeForbidden:
		apiErr.err = app.ErrForbidden
	default:
		apiErr.err = core.FromCode(eb.Error)
	}
	return apiErr
}

func (c *Client) CreateSession(ctx context.Context, p domain.Participants) (domain.SessionID, error) {
	var out struct {
		SessionID domain.SessionID `json:"sessionId"`
	}
	err := c.do(ctx, "create", http.MethodPost, "/session", p, &out)
	return out.SessionID, err
}

func (c *Client) FindSession(ctx context.Context, p domain.Participants) (domain.Session, error) {
	var out domain.Session
	path := fmt.Sprintf("/session?doctorId=%d&patientId=%d", p.DoctorID, p.PatientID)
	err := c.do(ctx, "find", http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) SubmitOffer(ctx context.Context, id domain.SessionID, offer string) error {
	in := map[string]string{"sessionId": string(id), "offer": offer}
	return c.do(ctx, "offer", http.MethodPost, "/offer", in, nil)
}

func (c *Client) FetchOffer(ctx context.Context, id domain.SessionID) (string, bool, error) {
	var out struct {
		Ready bool   `json:"ready"`
		Offer string `json:"offer"`
	}
	err := c.do(ctx, "offer", http.MethodGet, "/offer/"+url.PathEscape(string(id)), nil, &out)
	return out.Offer, out.Ready, err
}

func (c *Client) SubmitAnswer(ctx context.Context, id domain.SessionID, answer string) error {
	in := map[string]string{"sessionId": string(id), "answer": answer}
	return c.do(ctx, "answer", http.MethodPost, "/answer", in, nil)
}

func (c *Client) FetchAnswer(ctx context.Context, id domain.SessionID) (string, bool, error) {
	var out struct {
		Ready  bool   `json:"ready"`
		Answer string `json:"answer"`
	}
	err := c.do(ctx, "answer", http.MethodGet, "/answer/"+url.PathEscape(string(id)), nil, &out)
	return out.Answer, out.Ready, err
}

func (c *Client) SubmitCandidate(ctx context.Context, id domain.SessionID, ci domain.CandidateInit) (int, error) {
	in := struct {
		SessionID domain.SessionID `json:"sessionId"`
		domain.CandidateInit
	}{id, ci}
	var out struct {
		Index int `json:"index"`
	}
	err := c.do(ctx, "candidate", http.MethodPost, "/ice", in, &out)
	return out.Index, err
}

func (c *Client) FetchCandidates(ctx context.Context, id domain.SessionID, since int) ([]domain.Candidate, int, error) {
	var out struct {
		Candidates []domain.Candidate `json:"candidates"`
		Next       int                `json:"next"`
	}
	path := "/ice/" + url.PathEscape(string(id)) + "?since=" + strconv.Itoa(since)
	err := c.do(ctx, "candidates", http.MethodGet, path, nil, &out)
	return out.Candidates, out.Next, err
}

func (c *Client) MarkActive(ctx context.Context, id domain.SessionID) error {
	return c.do(ctx, "active", http.MethodPost, "/active/"+url.PathEscape(string(id)), nil, nil)
}

func (c *Client) EndSession(ctx context.Context, id domain.SessionID) error {
	return c.do(ctx, "end", http.MethodPost, "/end/"+url.PathEscape(string(id)), nil, nil)
}

// Watch opens the push stream. The channel closes when the relay ends the
// session, the socket drops or ctx is done.
func (c *Client) Watch(ctx context.Context, id domain.SessionID) (<-chan domain.Event, error) {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + apiPrefix + "/watch/" + string(id)

	h := http.Header{}
	c.setPrincipal(h)
	ws, resp, err := c.dialer.DialContext(ctx, u.String(), h)
	if err != nil {
		if resp != nil {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
			_ = resp.Body.Close()
			return nil, decodeError("watch", resp.StatusCode, raw)
		}
		return nil, fmt.Errorf("watch: %w", err)
	}

	events := make(chan domain.Event, 8)
	go func() {
		<-ctx.Done()
		_ = ws.Close()
	}()
	go func() {
		defer close(events)
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "agent.client").Str("sid", string(id)).Msg("watch closed")
				return
			}
			var ev domain.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				log.Warn().Err(err).Str("module", "agent.client").Msg("bad watch frame")
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

var (
	_ Signaler = (*Client)(nil)
	_ Watcher  = (*Client)(nil)
)
