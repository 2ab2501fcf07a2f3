// Package api defines the wire types of the approvalflow HTTP API.
//
// # API Overview
//
// approvalflow exposes a small RESTful surface over the approval engine:
//   - POST /api/v1/approvals/{id}/respond: resolve a pending approval
//   - GET  /api/v1/approvals             : list pending approvals
//   - GET  /api/v1/approvals/{id}        : fetch the persisted record
//   - GET  /api/v1/approvals/stream      : websocket feed of engine events
//   - /health, /healthz, /ready, /version
//
// # Authentication
//
// When API keys are configured, requests carry the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// With JWT enabled, a bearer token is accepted instead:
//
//	Authorization: Bearer <token>
//
// Health endpoints are never authenticated.
//
// # Response Envelope
//
// Every JSON response uses the envelope written by api/handlers:
//
//	{"success": true, "data": ..., "timestamp": "...", "request_id": "..."}
//	{"success": false, "error": {"code": "APPROVAL_NOT_FOUND", "message": "..."}, ...}
package api
