// Package ws streams lifecycle events to websocket clients.
//
// Clients connect to /events, optionally filtered with ?app_id=. Every
// published event is forwarded as one JSON message. A client that sends
// {"type":"ping"} receives {"type":"pong"}.
package ws
