package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/CallRelay/internal/app"
	"github.com/dkeye/CallRelay/internal/core"
	"github.com/dkeye/CallRelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const CodeBadRequest = "BAD_REQUEST"

type CreateSessionRequest struct {
	DoctorID  int64 `json:"doctorId" binding:"required"`
	PatientID int64 `json:"patientId" binding:"required"`
}

type CreateSessionResponse struct {
	SessionID     domain.SessionID `json:"sessionId"`
	State         domain.State     `json:"state"`
	Side          domain.Side      `json:"side"`
	InitiatorRole domain.Role      `json:"initiatorRole"`
}

type OfferRequest struct {
	SessionID domain.SessionID `json:"sessionId" binding:"required"`
	Offer     string           `json:"offer" binding:"required"`
}

type AnswerRequest struct {
	SessionID domain.SessionID `json:"sessionId" binding:"required"`
	Answer    string           `json:"answer" binding:"required"`
}

type CandidateRequest struct {
	SessionID     domain.SessionID `json:"sessionId" binding:"required"`
	Candidate     string           `json:"candidate"`
	SDPMid        *string          `json:"sdpMid"`
	SDPMLineIndex *uint16          `json:"sdpMLineIndex"`
}

type OfferResponse struct {
	Ready bool   `json:"ready"`
	Offer string `json:"offer,omitempty"`
}

type AnswerResponse struct {
	Ready  bool   `json:"ready"`
	Answer string `json:"answer,omitempty"`
}

type CandidateResponse struct {
	Status string `json:"status"`
	Index  int    `json:"index"`
}

// Handler exposes SignalingService over REST.
type Handler struct {
	Svc *app.SignalingService
}

func NewHandler(svc *app.SignalingService) *Handler {
	return &Handler{Svc: svc}
}

// writeError maps service errors to status codes; conflict bodies carry what
// a client needs to recover (existing session id, identical flag).
func writeError(c *gin.Context, err error) {
	body := gin.H{"error": app.ErrorCode(err), "message": err.Error()}
	status := http.StatusInternalServerError

	var dup *core.DuplicateSessionError
	var conflict *core.PayloadConflictError
	switch {
	case errors.Is(err, app.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &dup):
		status = http.StatusConflict
		body["sessionId"] = dup.Existing
	case errors.As(err, &conflict):
		status = http.StatusConflict
		body["identical"] = conflict.Identical
	case errors.Is(err, core.ErrAlreadySet), errors.Is(err, core.ErrInvalidState), errors.Is(err, core.ErrDuplicateActiveSession):
		status = http.StatusConflict
	case errors.Is(err, core.ErrCapExceeded):
		status = http.StatusUnprocessableEntity
	default:
		log.Error().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unexpected error")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": CodeBadRequest, "message": msg})
}

func principal(c *gin.Context) domain.Principal {
	pr, _ := PrincipalFrom(c)
	return pr
}

// CreateSession handles POST /api/webrtc/session.
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := domain.NewParticipants(req.DoctorID, req.PatientID)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	pr := principal(c)
	sess, err := h.Svc.CreateSession(pr, p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, CreateSessionResponse{
		SessionID:     sess.ID,
		State:         sess.State,
		Side:          sess.SideOf(pr),
		InitiatorRole: sess.InitiatorRole,
	})
}

// FindSession handles GET /api/webrtc/session?doctorId=&patientId=.
func (h *Handler) FindSession(c *gin.Context) {
	doctorID, err1 := strconv.ParseInt(c.Query("doctorId"), 10, 64)
	patientID, err2 := strconv.ParseInt(c.Query("patientId"), 10, 64)
	if err1 != nil || err2 != nil {
		badRequest(c, "doctorId and patientId are required")
		return
	}
	p, err := domain.NewParticipants(doctorID, patientID)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	sess, err := h.Svc.FindActive(principal(c), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// GetSession handles GET /api/webrtc/session/:sessionId.
func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.Svc.GetSession(principal(c), domain.SessionID(c.Param("sessionId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// SubmitOffer handles POST /api/webrtc/offer.
func (h *Handler) SubmitOffer(c *gin.Context) {
	var req OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Svc.SubmitOffer(principal(c), req.SessionID, req.Offer); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "offer_received"})
}

// FetchOffer handles GET /api/webrtc/offer/:sessionId. Not ready is a 200 with ready=false.
func (h *Handler) FetchOffer(c *gin.Context) {
	offer, ok, err := h.Svc.FetchOffer(principal(c), domain.SessionID(c.Param("sessionId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, OfferResponse{Ready: ok, Offer: offer})
}

// SubmitAnswer handles POST /api/webrtc/answer.
func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Svc.SubmitAnswer(principal(c), req.SessionID, req.Answer); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "answer_received"})
}

// FetchAnswer handles GET /api/webrtc/answer/:sessionId.
func (h *Handler) FetchAnswer(c *gin.Context) {
	answer, ok, err := h.Svc.FetchAnswer(principal(c), domain.SessionID(c.Param("sessionId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnswerResponse{Ready: ok, Answer: answer})
}

// SubmitCandidate handles POST /api/webrtc/ice. Fields pass through unmodified.
func (h *Handler) SubmitCandidate(c *gin.Context) {
	var req CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	idx, err := h.Svc.SubmitCandidate(principal(c), req.SessionID, domain.CandidateInit{
		Candidate:     req.Candidate,
		SDPMid:        req.SDPMid,
		SDPMLineIndex: req.SDPMLineIndex,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, CandidateResponse{Status: "ice_candidate_received", Index: idx})
}

// FetchCandidates handles GET /api/webrtc/ice/:sessionId?since=k.
func (h *Handler) FetchCandidates(c *gin.Context) {
	since := 0
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			badRequest(c, "since must be a non-negative integer")
			return
		}
		since = v
	}
	page, err := h.Svc.FetchCandidates(principal(c), domain.SessionID(c.Param("sessionId")), since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkActive handles POST /api/webrtc/active/:sessionId.
func (h *Handler) MarkActive(c *gin.Context) {
	sess, err := h.Svc.MarkActive(principal(c), domain.SessionID(c.Param("sessionId")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": sess.State})
}

// EndSession handles POST /api/webrtc/end/:sessionId. Unknown ids succeed.
func (h *Handler) EndSession(c *gin.Context) {
	if err := h.Svc.EndSession(principal(c), domain.SessionID(c.Param("sessionId"))); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "session_ended"})
}
