package syncbus

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
)

const embeddedStartTimeout = 5 * time.Second

// EmbeddedServer runs an in-process NATS server so a single machine needs
// no external broker.
type EmbeddedServer struct {
	ns     *server.Server
	logger *log.Logger
}

// StartEmbedded starts the in-process server when cfg.Embedded is set and
// returns nil otherwise.
func StartEmbedded(cfg Config, logger *log.Logger) (*EmbeddedServer, error) {
	if !cfg.Embedded {
		return nil, nil
	}

	opts := &server.Options{
		Host: "127.0.0.1",
		Port: cfg.EmbeddedPort,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded sync server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(embeddedStartTimeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded sync server not ready after %v", embeddedStartTimeout)
	}

	logger.Debug("embedded sync server started", "port", cfg.EmbeddedPort)
	return &EmbeddedServer{ns: ns, logger: logger}, nil
}

// ClientURL returns the URL local clients should dial.
func (e *EmbeddedServer) ClientURL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.logger.Debug("stopping embedded sync server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
