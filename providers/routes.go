package providers

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRoutes registers the status and tool routes.
func (p *StompPlugin) RegisterRoutes(group fiber.Router) {
	group.Get("/stomp/status", p.handleStatus)
	group.Get("/stomp/subscriptions", p.handleSubscriptions)
	group.Get("/stomp/tools", p.handleListTools)
	group.Post("/stomp/tools/:name", p.handleCallTool)
}

func (p *StompPlugin) handleStatus(c fiber.Ctx) error {
	st := p.backend.Status()
	code := fiber.StatusOK
	if !st.Connected {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(st)
}

func (p *StompPlugin) handleSubscriptions(c fiber.Ctx) error {
	st := p.backend.Status()
	return c.JSON(fiber.Map{
		"live":    st.Subscriptions,
		"pending": st.Pending,
	})
}

func (p *StompPlugin) handleListTools(c fiber.Ctx) error {
	tools := p.Tools()
	out := make([]fiber.Map, 0, len(tools))
	for _, t := range tools {
		out = append(out, fiber.Map{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": t.InputSchema,
		})
	}
	return c.JSON(fiber.Map{"tools": out})
}

func (p *StompPlugin) handleCallTool(c fiber.Ctx) error {
	tool, ok := p.tool(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "unknown_tool",
			"message": "no tool named " + c.Params("name"),
		})
	}

	input := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "invalid_json",
				"message": err.Error(),
			})
		}
	}

	result, err := tool.Handler(input)
	if err != nil {
		p.logger.Warn().Err(err).Str("tool", tool.Name).Msg("tool call failed")
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "tool_failed",
			"message": err.Error(),
		})
	}
	return c.JSON(result)
}
