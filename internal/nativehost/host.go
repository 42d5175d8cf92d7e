package nativehost

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Defaults match the extension's expectations.
const (
	DefaultPollInterval = time.Second
	DefaultHeartbeat    = 15 * time.Second
	minPollInterval     = 50 * time.Millisecond
	inboxSize           = 16
)

// Status is what the extension needs to know.
type Status struct {
	BlockX         bool
	ProcessRunning bool
}

// StatusFunc computes a fresh status.
type StatusFunc func(ctx context.Context) Status

// Host streams status messages to out and answers poll requests read from in.
type Host struct {
	in        io.Reader
	out       io.Writer
	status    StatusFunc
	poll      time.Duration
	heartbeat time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewHost creates a host with default intervals.
func NewHost(in io.Reader, out io.Writer, status StatusFunc, logger *zap.Logger) *Host {
	return &Host{
		in:        in,
		out:       out,
		status:    status,
		poll:      DefaultPollInterval,
		heartbeat: DefaultHeartbeat,
		logger:    logger,
		now:       time.Now,
	}
}

// WithIntervals overrides the poll and heartbeat intervals.
func (h *Host) WithIntervals(poll, heartbeat time.Duration) *Host {
	if poll < minPollInterval {
		poll = minPollInterval
	}
	h.poll = poll
	if heartbeat > 0 {
		h.heartbeat = heartbeat
	}
	return h
}

// Run sends a status on start, on every change and at least once per heartbeat.
// It returns nil when stdin closes, stdout breaks or ctx is canceled.
func (h *Host) Run(ctx context.Context) error {
	inbox := make(chan map[string]any, inboxSize)
	go h.readLoop(inbox)

	h.logger.Info("native host started",
		zap.Duration("poll", h.poll),
		zap.Duration("heartbeat", h.heartbeat))

	var last *bool
	var lastSent time.Time
	for {
		now := h.now()
		st := h.status(ctx)
		if last == nil || st.BlockX != *last || now.Sub(lastSent) >= h.heartbeat {
			if last != nil && st.BlockX != *last {
				h.logger.Info("block_state_changed", zap.Bool("block_x", st.BlockX), zap.Bool("previous", *last))
			}
			if err := WriteMessage(h.out, statusPayload(st, now)); err != nil {
				h.logger.Info("stdout closed, exiting", zap.Error(err))
				return nil
			}
			block := st.BlockX
			last = &block
			lastSent = now
		}

		timer := time.NewTimer(h.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case msg, ok := <-inbox:
			timer.Stop()
			if !ok {
				h.logger.Info("stdin closed, exiting")
				return nil
			}
			if err := h.handle(ctx, msg); err != nil {
				h.logger.Info("stdout closed, exiting", zap.Error(err))
				return nil
			}

		case <-timer.C:
		}
	}
}

// handle answers poll requests with a fresh status. Other message types are ignored.
func (h *Host) handle(ctx context.Context, msg map[string]any) error {
	if msg["type"] != "poll" {
		h.logger.Debug("ignoring message", zap.Any("type", msg["type"]))
		return nil
	}
	payload := statusPayload(h.status(ctx), h.now())
	payload["reply_to"] = msg["id"]
	return WriteMessage(h.out, payload)
}

// readLoop feeds inbox until stdin ends. Parse errors skip the message.
func (h *Host) readLoop(inbox chan<- map[string]any) {
	defer close(inbox)
	for {
		msg, err := ReadMessage(h.in)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				h.logger.Warn("message_parse_error", zap.Error(err))
				continue
			}
			if !errors.Is(err, io.EOF) {
				h.logger.Warn("stdin read failed", zap.Error(err))
			}
			return
		}
		inbox <- msg
	}
}

func statusPayload(st Status, now time.Time) map[string]any {
	return map[string]any{
		"type":            "status",
		"block_x":         st.BlockX,
		"process_running": st.ProcessRunning,
		"timestamp_unix":  float64(now.UnixNano()) / 1e9,
	}
}
