// Package gateway orchestrates the cyborg-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the server. It owns
// the SQLite store, the model backend client, the tool registry, the
// directory service and the chat orchestrator, and exposes them over a
// single HTTP server.
//
// # HTTP API
//
// Handlers live in api.go:
//
//   - POST /chat - One full chat turn (non-streaming)
//   - POST /chat/stream - One chat turn streamed as Server-Sent Events
//   - GET /conversations - List the caller's conversations
//   - GET /conversations/{id} - Conversation with paginated messages
//   - GET /profiles/{id} - Read a directory profile (public)
//   - PUT /profiles/me - Upsert the caller's profile
//   - POST /follow/{id} - Follow an account
//   - DELETE /follow/{id} - Unfollow an account
//   - GET /profiles/{id}/follows - Accounts an account follows
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check
//
// All chat, conversation and follow endpoints require a bearer session
// token; the account ID is taken from the verified token, never from the
// request body.
//
// # SSE Streaming
//
// Turn progress is streamed as Server-Sent Events:
//
//	event: chunk
//	id: 1
//	data: {"content":"Hello"}
//
//	event: complete
//	id: 2
//	data: {"conversationId":"...","messageId":"..."}
//
// Every stream ends with exactly one terminal event, either complete or
// error. Failures before the stream starts are plain HTTP status codes.
//
// # Lifecycle
//
// Start the gateway:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx)
//
// Run blocks until the context is canceled and shuts down gracefully.
package gateway
