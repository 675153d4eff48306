// Mediaforge - Resumable Media Upload and Transcoding Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediaforge

package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs nats-server with JetStream inside the process for
// single node deployments.
type EmbeddedServer struct {
	server *server.Server
}

// StartEmbeddedServer starts a server on a random local port with
// JetStream storage in storeDir. An empty storeDir selects a temp dir.
func StartEmbeddedServer(storeDir string, maxStore int64) (*EmbeddedServer, error) {
	opts := &server.Options{
		ServerName:        "mediaforge-events",
		Host:              "127.0.0.1",
		Port:              server.RANDOM_PORT,
		JetStream:         true,
		StoreDir:          storeDir,
		JetStreamMaxStore: maxStore,
		NoSigs:            true,
		NoLog:             true,
		MaxPayload:        1024 * 1024,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create NATS server: %w", err)
	}
	go ns.Start()

	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("NATS server not ready within timeout")
	}
	return &EmbeddedServer{server: ns}, nil
}

// ClientURL is the nats:// URL clients connect to.
func (s *EmbeddedServer) ClientURL() string {
	return s.server.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (s *EmbeddedServer) Shutdown() {
	s.server.Shutdown()
	s.server.WaitForShutdown()
}
