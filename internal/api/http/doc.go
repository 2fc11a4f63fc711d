// Package http exposes the app lifecycle over a JSON REST API.
//
// Routes:
//
//	GET    /health
//	GET    /apps
//	POST   /apps                    {"update_url": "..."}
//	GET    /apps/:id
//	DELETE /apps/:id
//	POST   /apps/:id/update
//	POST   /apps/:id/check
//	PUT    /apps/:id/status         {"status": "enabled"|"disabled"}
//	GET    /apps/:id/transition
//	POST   /updates/check
//
// Failures carry {"error", "kind"} where kind is the planner error kind.
package http
