// Package server assembles the apps daemon: storage, registry, boot
// recovery, planner, scheduler and the HTTP API.
package server
