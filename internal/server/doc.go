// Package server implements the secure group chat relay: a single-process,
// in-memory websocket message relay with room-partitioned messages and
// presence, a passkey session gate, and a file-upload collaborator endpoint.
//
// The implementation is organized into specialized files for configuration,
// the event codec, the connection registry, the message store, the hub
// (event router), clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
