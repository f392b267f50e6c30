// ABOUTME: HTTP API handlers for chat turns, conversations and the directory
// ABOUTME: Maps orchestrator and backend errors to the documented status codes

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NEARBuilders/cyborg-gateway/internal/auth"
	"github.com/NEARBuilders/cyborg-gateway/internal/chat"
	"github.com/NEARBuilders/cyborg-gateway/internal/model"
	"github.com/NEARBuilders/cyborg-gateway/internal/sse"
	"github.com/NEARBuilders/cyborg-gateway/internal/store"
)

// ChatRequest is the JSON request body for POST /chat and POST /chat/stream.
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// MessageResponse is the JSON shape of one persisted message.
type MessageResponse struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
}

// ChatResponse is the JSON response for POST /chat.
type ChatResponse struct {
	ConversationID string          `json:"conversationId"`
	Message        MessageResponse `json:"message"`
}

// ConversationResponse is the JSON shape of one conversation.
type ConversationResponse struct {
	ID             string `json:"id"`
	OwnerAccountID string `json:"ownerAccountId"`
	Title          string `json:"title"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// ListConversationsResponse is the JSON response for GET /conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// Pagination describes the window of a paginated listing.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ConversationDetailResponse is the JSON response for GET /conversations/{id}.
type ConversationDetailResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Messages     []MessageResponse    `json:"messages"`
	Pagination   Pagination           `json:"pagination"`
}

// ProfileRequest is the JSON request body for PUT /profiles/me.
type ProfileRequest struct {
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio"`
	Tags        []string `json:"tags"`
}

// ProfileResponse is the JSON shape of one directory profile.
type ProfileResponse struct {
	AccountID   string   `json:"accountId"`
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio"`
	Tags        []string `json:"tags"`
	UpdatedAt   string   `json:"updatedAt"`
}

// FollowResponse is the JSON shape of one follow edge.
type FollowResponse struct {
	FollowerID string `json:"followerId"`
	FolloweeID string `json:"followeeId"`
	CreatedAt  string `json:"createdAt"`
}

// ListFollowsResponse is the JSON response for GET /profiles/{id}/follows.
type ListFollowsResponse struct {
	Follows []FollowResponse `json:"follows"`
}

// parseChatRequest parses and validates a ChatRequest from the given reader.
func parseChatRequest(r io.Reader) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	if req.Message == "" {
		return nil, errors.New("message is required")
	}
	return &req, nil
}

// handleChat handles POST /chat requests: one full non-streaming turn.
func (g *Gateway) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	accountID := auth.AccountFromContext(r.Context())
	result, err := g.orchestrator.ProcessMessage(r.Context(), accountID, req.Message, req.ConversationID)
	if err != nil {
		g.sendChatError(w, err)
		return
	}

	g.sendJSON(w, http.StatusOK, ChatResponse{
		ConversationID: result.ConversationID,
		Message:        messageResponse(result.Message),
	})
}

// handleChatStream handles POST /chat/stream requests. Failures before the
// first event map to HTTP status codes; once streaming starts, failures
// arrive as terminal error frames inside the stream.
func (g *Gateway) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	req, err := parseChatRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	accountID := auth.AccountFromContext(r.Context())
	events, err := g.orchestrator.ProcessMessageStream(r.Context(), accountID, req.Message, req.ConversationID)
	if err != nil {
		g.sendChatError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		g.logger.Error("streaming not supported", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	for ev := range events {
		if err := writer.WriteEvent(ev.Type, ev.ID, ev.Data); err != nil {
			g.logger.Debug("client disconnected mid-stream", "error", err)
			return
		}
	}
}

// sendChatError maps orchestrator and model backend errors to status codes.
func (g *Gateway) sendChatError(w http.ResponseWriter, err error) {
	var rateLimit *model.RateLimitError
	var unavailable *model.UnavailableError

	switch {
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, "conversation belongs to another account")
	case errors.Is(err, model.ErrUnauthorized):
		g.sendJSONError(w, http.StatusUnauthorized, "model backend rejected credentials")
	case errors.Is(err, model.ErrNotConfigured):
		w.Header().Set("Retry-After", retryAfterSeconds(model.DefaultRetryAfter))
		g.sendJSONError(w, http.StatusServiceUnavailable, "model backend not configured")
	case errors.As(err, &rateLimit):
		w.Header().Set("Retry-After", retryAfterSeconds(rateLimit.RetryAfter))
		g.sendJSONError(w, http.StatusTooManyRequests, "model backend rate limited")
	case errors.As(err, &unavailable):
		w.Header().Set("Retry-After", retryAfterSeconds(unavailable.RetryAfter))
		g.sendJSONError(w, http.StatusServiceUnavailable, "model backend unavailable")
	default:
		g.logger.Error("chat turn failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(d.Seconds()))
}

// handleListConversations handles GET /conversations requests.
// Returns the caller's conversations, most recently updated first.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit, ok := parseLimit(w, r, 50, 500)
	if !ok {
		return
	}

	accountID := auth.AccountFromContext(r.Context())
	convs, err := g.store.ListConversations(r.Context(), accountID, limit)
	if err != nil {
		g.logger.Error("failed to list conversations", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListConversationsResponse{
		Conversations: make([]ConversationResponse, len(convs)),
	}
	for i, c := range convs {
		response.Conversations[i] = conversationResponse(c)
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleConversation handles GET /conversations/{id} requests.
// Returns the conversation with a paginated chronological message window.
func (g *Gateway) handleConversation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conversationID := strings.TrimPrefix(r.URL.Path, "/conversations/")
	if conversationID == "" || strings.Contains(conversationID, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	limit, ok := parseLimit(w, r, 50, 500)
	if !ok {
		return
	}
	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	conv, err := g.store.GetConversation(r.Context(), conversationID)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get conversation", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if conv.OwnerAccountID != auth.AccountFromContext(r.Context()) {
		g.sendJSONError(w, http.StatusForbidden, "conversation belongs to another account")
		return
	}

	// Fetch one extra row to detect whether more pages exist
	msgs, err := g.store.GetMessages(r.Context(), conversationID, limit+1, offset)
	if err != nil {
		g.logger.Error("failed to get messages", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	response := ConversationDetailResponse{
		Conversation: conversationResponse(conv),
		Messages:     make([]MessageResponse, len(msgs)),
		Pagination:   Pagination{Limit: limit, Offset: offset, HasMore: hasMore},
	}
	for i, m := range msgs {
		response.Messages[i] = messageResponse(m)
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleProfileRoutes handles GET /profiles/{id} and GET /profiles/{id}/follows.
// Profile reads are public.
func (g *Gateway) handleProfileRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/profiles/")
	if accountID, found := strings.CutSuffix(rest, "/follows"); found {
		g.handleListFollows(w, r, accountID)
		return
	}

	if rest == "" || strings.Contains(rest, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	profile, err := g.directory.GetProfile(r.Context(), rest)
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "profile not found")
		return
	}
	if err != nil {
		g.logger.Error("failed to get profile", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, profileResponse(profile))
}

// handleOwnProfile handles PUT /profiles/me requests: upsert of the
// caller's directory profile.
func (g *Gateway) handleOwnProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DisplayName == "" {
		g.sendJSONError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	profile := &store.Profile{
		AccountID:   auth.AccountFromContext(r.Context()),
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Tags:        req.Tags,
		UpdatedAt:   time.Now(),
	}
	if err := g.store.UpsertProfile(r.Context(), profile); err != nil {
		g.logger.Error("failed to upsert profile", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusOK, profileResponse(profile))
}

// handleListFollows handles GET /profiles/{id}/follows requests.
func (g *Gateway) handleListFollows(w http.ResponseWriter, r *http.Request, accountID string) {
	if accountID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	follows, err := g.store.ListFollowing(r.Context(), accountID, 100)
	if err != nil {
		g.logger.Error("failed to list follows", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := ListFollowsResponse{
		Follows: make([]FollowResponse, len(follows)),
	}
	for i, f := range follows {
		response.Follows[i] = FollowResponse{
			FollowerID: f.FollowerID,
			FolloweeID: f.FolloweeID,
			CreatedAt:  f.CreatedAt.Format(time.RFC3339),
		}
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleFollow handles POST and DELETE /follow/{accountId} requests.
// Both operations are idempotent.
func (g *Gateway) handleFollow(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimPrefix(r.URL.Path, "/follow/")
	if target == "" || strings.Contains(target, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}

	accountID := auth.AccountFromContext(r.Context())
	if target == accountID {
		g.sendJSONError(w, http.StatusBadRequest, "cannot follow yourself")
		return
	}

	var err error
	switch r.Method {
	case http.MethodPost:
		err = g.store.CreateFollow(r.Context(), accountID, target)
	case http.MethodDelete:
		err = g.store.DeleteFollow(r.Context(), accountID, target)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err != nil {
		g.logger.Error("failed to update follow edge", "error", err, "target", target)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit parses an optional limit query parameter with a default and cap.
// Writes a 400 response and returns false on invalid input.
func parseLimit(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	limit := def
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "limit must be a positive integer"})
			return 0, false
		}
		limit = parsed
		if limit > max {
			limit = max
		}
	}
	return limit, true
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func profileResponse(p *store.Profile) ProfileResponse {
	return ProfileResponse{
		AccountID:   p.AccountID,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Tags:        p.Tags,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func conversationResponse(c *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:             c.ID,
		OwnerAccountID: c.OwnerAccountID,
		Title:          c.Title,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.Format(time.RFC3339),
	}
}

// sendJSON writes a JSON response with the given status code.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
