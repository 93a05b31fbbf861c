package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/ashureev/botgate/internal/domain"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errSendRejected             = errors.New("runtime rejected message")
)

// RuntimeClient is the gRPC client to the bot runtime process.
type RuntimeClient struct {
	conn   *grpc.ClientConn
	addr   string
	botKey string
	logger *slog.Logger
}

// RuntimeClientConfig holds configuration for the runtime client.
type RuntimeClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultRuntimeClientConfig returns default configuration.
func DefaultRuntimeClientConfig() RuntimeClientConfig {
	return RuntimeClientConfig{
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewRuntimeClient connects to the bot runtime at addr and fetches the
// bot identity. It fails fast if the runtime is not reachable within the
// connect timeout.
func NewRuntimeClient(addr string, logger *slog.Logger) (*RuntimeClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultRuntimeClientConfig()
	cfg.Address = addr

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bot runtime at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad
	// runtime endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("bot runtime at %s not ready: %w", cfg.Address, err)
	}

	c := &RuntimeClient{conn: conn, addr: cfg.Address, logger: logger}

	helloCtx, cancelHello := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancelHello()
	var hello helloResponse
	if err := conn.Invoke(helloCtx, "/botruntime.Runtime/Hello", &helloRequest{}, &hello); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after hello failure", "error", closeErr)
		}
		return nil, fmt.Errorf("bot runtime hello failed: %w", err)
	}
	c.botKey = hello.BotKey

	logger.Info("Connected to bot runtime", "address", cfg.Address, "bot", c.botKey, "version", hello.Version)
	return c, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Key returns the bot account identity reported by the runtime.
func (c *RuntimeClient) Key() string {
	return c.botKey
}

// Alive reports whether the runtime still answers health checks.
func (c *RuntimeClient) Alive(ctx context.Context) bool {
	var resp healthResponse
	if err := c.conn.Invoke(ctx, "/botruntime.Runtime/Health", &healthRequest{}, &resp); err != nil {
		c.logger.Debug("runtime health check failed", "error", err)
		return false
	}
	return resp.Status == "ok"
}

// Send delivers an outbound chat message through the runtime.
func (c *RuntimeClient) Send(ctx context.Context, msg domain.OutboundMessage) error {
	req := &sendMessageRequest{ID: msg.ID, To: msg.To, Body: msg.Body}
	var resp sendMessageResponse
	if err := c.conn.Invoke(ctx, "/botruntime.Runtime/SendMessage", req, &resp); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if !resp.OK {
		return fmt.Errorf("%w: %s", errSendRejected, resp.Error)
	}
	return nil
}

// eventsStreamDesc describes the server-streaming event feed.
var eventsStreamDesc = &grpc.StreamDesc{
	StreamName:    "Events",
	ServerStreams: true,
}

// Events opens the runtime's event feed and returns a channel of
// translated events. The channel closes when the stream ends or ctx is
// cancelled.
func (c *RuntimeClient) Events(ctx context.Context) (<-chan domain.Event, error) {
	stream, err := c.conn.NewStream(ctx, eventsStreamDesc, "/botruntime.Runtime/Events")
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if err := stream.SendMsg(&eventsRequest{}); err != nil {
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return nil, fmt.Errorf("close send side: %w", err)
	}

	out := make(chan domain.Event, 64)
	go func() {
		defer close(out)
		for {
			var re runtimeEvent
			if err := stream.RecvMsg(&re); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					c.logger.Error("runtime event stream failed", "error", err)
				}
				return
			}
			select {
			case out <- translateEvent(re, c.botKey):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close closes the gRPC connection.
func (c *RuntimeClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("close runtime connection: %w", err)
	}
	return nil
}

// translateEvent converts a runtime event into the wire-format DTO served
// to API clients.
func translateEvent(re runtimeEvent, botKey string) domain.Event {
	id := re.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := time.Now()
	if re.Timestamp > 0 {
		ts = time.UnixMilli(re.Timestamp)
	}
	return domain.Event{
		ID:        id,
		Type:      domain.EventType(re.Type),
		BotKey:    botKey,
		From:      re.From,
		To:        re.To,
		Body:      re.Body,
		Timestamp: ts,
	}
}

// Ensure RuntimeClient implements Binding.
var _ Binding = (*RuntimeClient)(nil)
