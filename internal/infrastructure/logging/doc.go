// Package logging builds the zap root logger of the daemon.
//
// Production output is JSON, development output is colored console text.
// The level is atomic: LevelHandler exposes it over HTTP so it can be raised
// to debug on a running device and lowered again.
//
// Components receive a plain *zap.Logger; transition code derives child
// loggers carrying app_id and transition_id with ForTransition.
package logging
