package metering

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"claude_gateway/internal/models"
	"claude_gateway/internal/utils"
)

// Publisher accepts usage events. Implementations must not block on
// storage.
type Publisher interface {
	Publish(ctx context.Context, event *models.UsageEvent) error
}

// Meter forwards upstream bodies to clients and publishes the usage they
// carry.
type Meter struct {
	publisher Publisher
	logger    *utils.Logger
	now       func() time.Time
}

// NewMeter creates a Meter that hands events to publisher.
func NewMeter(publisher Publisher) *Meter {
	return &Meter{
		publisher: publisher,
		logger:    utils.NewLogger("meter"),
		now:       time.Now,
	}
}

// Stream copies src to dst line by line, flushing after every line, and
// publishes a usage event for each usage frame. Lines are forwarded byte for
// byte, including a final unterminated line. It returns when src is
// exhausted, ctx is done, or dst fails; events already published stand.
func (m *Meter) Stream(ctx context.Context, dst io.Writer, src io.Reader, attr Attribution) error {
	published := 0
	err := forward(ctx, dst, src, func(line []byte) {
		if ev := ParseFrame(line, attr, m.now()); ev != nil {
			m.publish(ctx, ev)
			published++
		}
	})
	m.logger.Debug("Stream finished", "chat", attr.ChatID, "events", published, "error", err)
	return err
}

// Forward copies src to dst the way Stream does, without metering.
func Forward(ctx context.Context, dst io.Writer, src io.Reader) error {
	return forward(ctx, dst, src, nil)
}

func forward(ctx context.Context, dst io.Writer, src io.Reader, onLine func([]byte)) error {
	flusher, _ := dst.(http.Flusher)
	reader := bufio.NewReader(src)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			if _, err := dst.Write(line); err != nil {
				return fmt.Errorf("write to client: %w", err)
			}
			if flusher != nil {
				flusher.Flush()
			}
			if onLine != nil {
				onLine(line)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("read upstream: %w", readErr)
		}
	}
}

// Record publishes the usage of a buffered response body, if any.
func (m *Meter) Record(ctx context.Context, body []byte, attr Attribution) *models.UsageEvent {
	ev := ExtractUsage(body, attr, m.now())
	if ev != nil {
		m.publish(ctx, ev)
	}
	return ev
}

// publish hands ev off detached from ctx so a client disconnect right after
// a usage frame does not drop it.
func (m *Meter) publish(ctx context.Context, ev *models.UsageEvent) {
	if err := m.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		m.logger.Error("Failed to publish usage event", "user", ev.UserID, "chat", ev.ChatID,
			"model", ev.ModelID, "input", ev.InputTokens, "output", ev.OutputTokens, "error", err)
	}
}
