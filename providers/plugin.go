// Package providers exposes the messaging service over HTTP for operators:
// status snapshots, publish and buffer tools.
package providers

import (
	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/service"
	"github.com/rs/zerolog"
)

// Backend is the part of service.Service the HTTP surface needs.
type Backend interface {
	Status() service.Status
	Publish(destination string, body any, headers map[string]string, opts ...client.PublishOptions) client.PublishResult
	FlushBuffer() int
	Unsubscribe(destination string)
}

// StompPlugin serves status routes and operator tools.
type StompPlugin struct {
	backend Backend
	logger  zerolog.Logger
}

// NewStompPlugin creates the HTTP surface for backend.
func NewStompPlugin(backend Backend, logger zerolog.Logger) *StompPlugin {
	return &StompPlugin{
		backend: backend,
		logger:  logger.With().Str("component", "stomp-http").Logger(),
	}
}

func (p *StompPlugin) ID() string      { return "stomp/client" }
func (p *StompPlugin) Name() string    { return "STOMP client" }
func (p *StompPlugin) Version() string { return "0.1.0" }
