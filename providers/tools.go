package providers

import (
	"fmt"

	"github.com/hongjunjie0928/jango-chatRoom/src/client"
)

// ToolDefinition is an operator action callable over HTTP.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     func(input map[string]any) (any, error)
}

// Tools returns the operator tools.
func (p *StompPlugin) Tools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        "stomp_status",
			Description: "Show connection state, subscriptions and buffer size",
			InputSchema: map[string]any{},
			Handler:     p.toolStatus,
		},
		{
			Name:        "stomp_publish",
			Description: "Publish a message to a destination",
			InputSchema: map[string]any{
				"destination": map[string]any{"type": "string", "description": "Destination name"},
				"body":        map[string]any{"type": "object", "description": "Message body"},
				"headers":     map[string]any{"type": "object", "description": "Extra frame headers"},
				"queue":       map[string]any{"type": "boolean", "description": "Buffer while disconnected"},
			},
			Handler: p.toolPublish,
		},
		{
			Name:        "stomp_flush",
			Description: "Send publishes buffered while disconnected",
			InputSchema: map[string]any{},
			Handler:     p.toolFlush,
		},
		{
			Name:        "stomp_unsubscribe",
			Description: "Remove one subscription for a destination",
			InputSchema: map[string]any{
				"destination": map[string]any{"type": "string", "description": "Destination name"},
			},
			Handler: p.toolUnsubscribe,
		},
	}
}

func (p *StompPlugin) tool(name string) (ToolDefinition, bool) {
	for _, t := range p.Tools() {
		if t.Name == name {
			return t, true
		}
	}
	return ToolDefinition{}, false
}

func (p *StompPlugin) toolStatus(_ map[string]any) (any, error) {
	return p.backend.Status(), nil
}

func (p *StompPlugin) toolPublish(input map[string]any) (any, error) {
	destination, _ := input["destination"].(string)
	if destination == "" {
		return nil, fmt.Errorf("destination is required")
	}
	headers := map[string]string{}
	if raw, ok := input["headers"].(map[string]any); ok {
		for k, v := range raw {
			headers[k] = fmt.Sprint(v)
		}
	}
	queue, _ := input["queue"].(bool)

	res := p.backend.Publish(destination, input["body"], headers, client.PublishOptions{QueueWhileDisconnected: queue})
	return map[string]any{
		"destination": destination,
		"result":      res.String(),
		"ok":          res.OK(),
	}, nil
}

func (p *StompPlugin) toolFlush(_ map[string]any) (any, error) {
	n := p.backend.FlushBuffer()
	return map[string]any{"flushed": n, "remaining": p.backend.Status().Buffered}, nil
}

func (p *StompPlugin) toolUnsubscribe(input map[string]any) (any, error) {
	destination, _ := input["destination"].(string)
	if destination == "" {
		return nil, fmt.Errorf("destination is required")
	}
	p.backend.Unsubscribe(destination)
	return map[string]any{"destination": destination, "removed": true}, nil
}
