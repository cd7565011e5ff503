package providers

import (
	"github.com/hongjunjie0928/jango-chatRoom/src/bridge"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/service"
	"github.com/hongjunjie0928/jango-chatRoom/src/transport"
)

// Compile-time interface assertions.
var (
	_ Backend             = (*service.Service)(nil)
	_ bridge.Relay        = (*bridge.RedisRelay)(nil)
	_ bridge.LocalTarget  = (*events.Bus)(nil)
	_ events.Bridge       = (*bridge.RedisRelay)(nil)
	_ transport.Transport = (*transport.WebSocket)(nil)
)
