// Command stompctl connects to a STOMP broker, subscribes and publishes from
// the command line and optionally serves the status routes over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hongjunjie0928/jango-chatRoom/config"
	"github.com/hongjunjie0928/jango-chatRoom/providers"
	"github.com/hongjunjie0928/jango-chatRoom/src/bridge"
	"github.com/hongjunjie0928/jango-chatRoom/src/client"
	"github.com/hongjunjie0928/jango-chatRoom/src/events"
	"github.com/hongjunjie0928/jango-chatRoom/src/service"
	"github.com/hongjunjie0928/jango-chatRoom/src/stomptest"
	"github.com/hongjunjie0928/jango-chatRoom/src/types"
	"github.com/rs/zerolog"
)

type options struct {
	configPath string
	broker     string
	identity   string
	subscribe  string
	publish    string
	body       string
	queue      bool
	httpAddr   string
	serveAddr  string
	debug      bool
	timestamp  bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config file (env STOMP_* still applies)")
	flag.StringVar(&o.broker, "broker", "", "broker URL, overrides config")
	flag.StringVar(&o.identity, "identity", "stompctl", "identity sent as uid and user-id")
	flag.StringVar(&o.subscribe, "subscribe", "", "comma separated destinations to subscribe")
	flag.StringVar(&o.publish, "publish", "", "destination to publish -body to after connecting")
	flag.StringVar(&o.body, "body", "", "message body; valid JSON is sent as JSON")
	flag.BoolVar(&o.queue, "queue", false, "buffer the publish if not connected")
	flag.StringVar(&o.httpAddr, "http", "", "serve status routes on this address, e.g. :8090")
	flag.StringVar(&o.serveAddr, "serve-broker", "", "run the in-process test broker on this address")
	flag.BoolVar(&o.debug, "debug", false, "log every frame")
	flag.BoolVar(&o.timestamp, "timestamp", false, "stamp published messages with a timestamp header")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if err := run(o, logger); err != nil {
		logger.Error().Err(err).Msg("stompctl failed")
		os.Exit(1)
	}
}

func run(o options, logger zerolog.Logger) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	if o.serveAddr != "" {
		srv := stomptest.NewServer(logger, stomptest.Options{})
		if err := srv.Start(o.serveAddr); err != nil {
			return fmt.Errorf("start broker: %w", err)
		}
		defer srv.Close()
		if o.broker == "" && o.configPath == "" && os.Getenv("STOMP_BROKER_URL") == "" {
			cfg.BrokerURL = srv.URL()
		}
	}

	var opts []client.Option
	if o.timestamp {
		opts = append(opts, client.WithHooks(client.Hooks{OnBeforeSend: client.TimestampHeader}))
	}
	svc, err := service.New(cfg, bridge.RedisConfigFromEnv(), logger, opts...)
	if err != nil {
		return err
	}

	svc.Bus().On(events.All, func(ev events.Event) {
		logger.Info().Str("event", ev.Name).Interface("data", ev.Data).Msg("lifecycle")
	})
	for _, dest := range splitList(o.subscribe) {
		svc.Subscribe(dest, printMessage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout()+time.Second)
	_, err = svc.Start(connectCtx, o.identity)
	cancel()
	if err != nil && !o.queue {
		_ = svc.Shutdown(context.Background())
		return fmt.Errorf("connect: %w", err)
	}

	if o.publish != "" {
		res := svc.Publish(o.publish, parseBody(o.body), nil, client.PublishOptions{QueueWhileDisconnected: o.queue})
		logger.Info().Str("destination", o.publish).Str("result", res.String()).Msg("publish")
	}

	var app *fiber.App
	if o.httpAddr != "" {
		app = fiber.New()
		providers.NewStompPlugin(svc, logger).RegisterRoutes(app)
		go func() {
			if err := app.Listen(o.httpAddr); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	if o.subscribe == "" && o.httpAddr == "" && o.serveAddr == "" {
		// One-shot publish: give the transport a moment to write.
		time.Sleep(200 * time.Millisecond)
	} else {
		<-ctx.Done()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if app != nil {
		_ = app.ShutdownWithContext(shutdownCtx)
	}
	return svc.Shutdown(shutdownCtx)
}

func loadConfig(o options) (*config.StompConfig, error) {
	var cfg *config.StompConfig
	if o.configPath != "" {
		c, err := config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		cfg = config.FromEnv()
	}
	if o.broker != "" {
		cfg.BrokerURL = o.broker
	}
	if o.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseBody sends valid JSON as-is and anything else as a plain string.
func parseBody(s string) any {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return s
}

func printMessage(m *types.Message) {
	fmt.Printf("%s [%s] %s\n", m.ReceivedAt.Format(time.RFC3339), m.Destination, m.Body)
}
