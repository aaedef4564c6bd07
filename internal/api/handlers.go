// Package api exposes the HTTP surface of the matchmaking service. The
// response field names are the wire contract the localized front ends are
// built against and must not change shape.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/koibridge/match-app/internal/chatsession"
	"github.com/koibridge/match-app/internal/cohort"
	"github.com/koibridge/match-app/internal/geo"
	"github.com/koibridge/match-app/internal/matchmaking"
	"github.com/koibridge/match-app/internal/message"
	"github.com/koibridge/match-app/internal/metrics"
	"github.com/koibridge/match-app/internal/ratelimit"
)

// SessionStore is the chat-session dependency of the end-chat endpoint.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*chatsession.Session, error)
	End(ctx context.Context, sessionID string) error
}

// MessageStore is the chat-message dependency of the messages endpoints.
type MessageStore interface {
	Append(ctx context.Context, sessionID, userID string, c cohort.Cohort, body string) (*message.Message, error)
	List(ctx context.Context, sessionID string, limit int) ([]message.Message, error)
}

// Handler bundles the HTTP handlers and their dependencies.
type Handler struct {
	matcher   *matchmaking.Service
	sessions  SessionStore
	messages  MessageStore
	resolver  geo.Resolver
	limiter   *ratelimit.Limiter // nil disables rate limiting
	startedAt time.Time
}

// NewHandler creates the API handler set. sessions, messages, resolver and
// limiter may be nil to disable the corresponding endpoints/checks.
func NewHandler(matcher *matchmaking.Service, sessions SessionStore, messages MessageStore, resolver geo.Resolver, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		matcher:   matcher,
		sessions:  sessions,
		messages:  messages,
		resolver:  resolver,
		limiter:   limiter,
		startedAt: time.Now(),
	}
}

type matchRequest struct {
	UserID  string `json:"userId"`
	Country string `json:"country"`
}

// handleMatch serves POST /api/match: one poll of the matchmaking loop.
func (h *Handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Country == "" {
		respondError(w, http.StatusBadRequest, "userId and country are required")
		return
	}

	c, err := cohort.Parse(req.Country)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid country. Only KR or JP allowed.")
		return
	}

	if !h.allow(r.Context(), req.UserID, ratelimit.RuleMatch) {
		respondError(w, http.StatusTooManyRequests, "too many match requests")
		return
	}

	result, err := h.matcher.RequestMatch(r.Context(), req.UserID, c)
	if err != nil {
		h.respondMatchmakingError(w, err, "Failed to process match request")
		return
	}

	if result.Matched {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":            true,
			"matched":            true,
			"chatId":             result.SessionID,
			"matchedUserId":      result.PartnerID,
			"waitingPosition":    0,
			"oppositeQueueCount": result.OppositeQueueDepth,
			"message":            "Match found!",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"matched":            false,
		"waitingPosition":    result.OwnPosition,
		"oppositeQueueCount": 0,
		"message":            "Waiting for match...",
	})
}

// handleCancelMatch serves DELETE /api/match?userId=...
func (h *Handler) handleCancelMatch(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}

	if err := h.matcher.Cancel(r.Context(), userID); err != nil {
		h.respondMatchmakingError(w, err, "Failed to cancel match")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Match cancelled",
	})
}

// handleWaitingStats serves GET /api/waiting-stats?country=...
func (h *Handler) handleWaitingStats(w http.ResponseWriter, r *http.Request) {
	c, err := cohort.Parse(r.URL.Query().Get("country"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Valid country (KR or JP) is required")
		return
	}

	if !h.allow(r.Context(), clientIP(r), ratelimit.RuleStats) {
		respondError(w, http.StatusTooManyRequests, "too many stats requests")
		return
	}

	stats, err := h.matcher.Stats(r.Context(), c)
	if err != nil {
		h.respondMatchmakingError(w, err, "Failed to get waiting stats")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":               true,
		"oppositeQueueCount":    stats.OppositeQueueDepth,
		"sameCountryQueueCount": stats.SameCohortQueueDepth,
		"estimatedWaitTime":     stats.EstimatedWaitSeconds,
	})
}

type sendMessageRequest struct {
	ChatID  string `json:"chatId"`
	UserID  string `json:"userId"`
	Message string `json:"message"`
	Country string `json:"country"`
}

// handleSendMessage serves POST /api/messages.
func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ChatID == "" || req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "chatId, userId, and message are required")
		return
	}

	c, err := cohort.Parse(req.Country)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid country. Only KR or JP allowed.")
		return
	}

	if !h.allow(r.Context(), req.UserID, ratelimit.RuleMessage) {
		respondError(w, http.StatusTooManyRequests, "too many messages")
		return
	}

	msg, err := h.messages.Append(r.Context(), req.ChatID, req.UserID, c, req.Message)
	if err != nil {
		log.Printf("[api] append message chat=%s: %v", req.ChatID, err)
		respondError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	metrics.MessagesTotal.Inc()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"messageId": msg.ID,
	})
}

// handleListMessages serves GET /api/messages?chatId=...&limit=...
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		respondError(w, http.StatusBadRequest, "chatId is required")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	msgs, err := h.messages.List(r.Context(), chatID, limit)
	if err != nil {
		log.Printf("[api] list messages chat=%s: %v", chatID, err)
		respondError(w, http.StatusInternalServerError, "Failed to get messages")
		return
	}

	out := make([]map[string]interface{}, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, map[string]interface{}{
			"id":        m.ID,
			"chatId":    m.SessionID,
			"userId":    m.UserID,
			"message":   m.Body,
			"country":   m.Cohort.String(),
			"createdAt": m.CreatedAt.UTC().Format(time.RFC3339Nano),
			"read":      m.Read,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"messages": out,
	})
}

// handleEndChat serves DELETE /api/chat?chatId=...&userId=... Ending the
// session is what makes both participants eligible for a new match.
func (h *Handler) handleEndChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chatId")
	userID := r.URL.Query().Get("userId")
	if chatID == "" || userID == "" {
		respondError(w, http.StatusBadRequest, "chatId and userId are required")
		return
	}

	session, err := h.sessions.Get(r.Context(), chatID)
	if err != nil {
		log.Printf("[api] end chat %s: %v", chatID, err)
		respondError(w, http.StatusInternalServerError, "Failed to end chat")
		return
	}
	if session == nil || !session.IsParticipant(userID) {
		respondError(w, http.StatusNotFound, "Chat not found")
		return
	}

	if session.Status == chatsession.StatusActive {
		if err := h.sessions.End(r.Context(), chatID); err != nil {
			log.Printf("[api] end chat %s: %v", chatID, err)
			respondError(w, http.StatusInternalServerError, "Failed to end chat")
			return
		}
		log.Printf("[api] chat %s ended by %s", chatID, userID)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Chat ended",
	})
}

// handleDetectCountry serves GET /api/detect-country.
func (h *Handler) handleDetectCountry(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(r.Context(), clientIP(r))
	if errors.Is(err, geo.ErrUnsupportedCountry) {
		respondError(w, http.StatusForbidden, "Unsupported country. Only Korea (KR) and Japan (JP) are supported.")
		return
	}
	if err != nil {
		log.Printf("[api] detect country: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to detect country")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"country":     res.Cohort.String(),
		"countryName": res.CountryName,
		"city":        res.City,
	})
}

// handleHealth reports service liveness.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// respondMatchmakingError maps the matchmaking error taxonomy onto the
// wire contract: 400 for caller bugs, 500 for store failures (safe to
// retry with backoff).
func (h *Handler) respondMatchmakingError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, matchmaking.ErrInvalidArgument) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("[api] %s: %v", msg, err)
	respondError(w, http.StatusInternalServerError, msg)
}

// allow checks the rate limit, failing open without a limiter.
func (h *Handler) allow(ctx context.Context, identifier string, rule ratelimit.Rule) bool {
	if h.limiter == nil {
		return true
	}
	ok, _ := h.limiter.Allow(ctx, identifier, rule)
	return ok
}

// clientIP extracts the originating client IP, honoring proxy headers.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-Ip"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
