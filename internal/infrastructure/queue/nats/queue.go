package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
)

const (
	clientName    = "medical-rag-assistant"
	workerGroup   = "indexers"
	headerMsgID   = "Nats-Msg-Id"
	headerKind    = "Document-Type"
	drainDeadline = 5 * time.Second
)

// Queue carries upload events. Each message body is the stored file path;
// headers carry a message id and the detected document type.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
}

var _ ports.MessageQueue = (*Queue)(nil)

type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	// ResilienceExecutor, when set, retries publishes that hit a reconnect.
	ResilienceExecutor *resilience.Executor
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, opts Options) (*Queue, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}

	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{conn: conn, subject: subject, executor: opts.ResilienceExecutor}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentUploaded(ctx context.Context, path string) error {
	msg, err := newUploadMsg(q.subject, path)
	if err != nil {
		return err
	}

	publish := func(context.Context) error {
		if err := q.conn.PublishMsg(msg); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", publish, isTransient)
	} else {
		err = publish(ctx)
	}
	return resilience.Temporary("nats publish", err, isTransient)
}

// SubscribeDocumentUploaded delivers each event to handler until ctx ends,
// then drains the subscription. Handler errors are logged and dropped: the
// next query on the document re-indexes it anyway.
func (q *Queue) SubscribeDocumentUploaded(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		path, err := decodeUploadMsg(msg)
		if err != nil {
			slog.Warn("upload_event_invalid", "error", err.Error())
			return
		}

		slog.Info("upload_event_received",
			"path", path,
			"document_type", msg.Header.Get(headerKind),
			"msg_id", msg.Header.Get(headerMsgID),
		)
		if err := handler(ctx, path); err != nil {
			slog.Warn("upload_event_failed", "path", path, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(drainDeadline); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func newUploadMsg(subject, path string) (*nats.Msg, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "nats publish", errors.New("empty path"))
	}

	msg := nats.NewMsg(subject)
	msg.Data = []byte(path)
	msg.Header.Set(headerMsgID, uuid.NewString())
	if kind, ok := domain.DetectContentType(path); ok {
		msg.Header.Set(headerKind, string(kind))
	}
	return msg, nil
}

func decodeUploadMsg(msg *nats.Msg) (string, error) {
	path := strings.TrimSpace(string(msg.Data))
	if path == "" {
		return "", errors.New("upload event without path")
	}
	return path, nil
}
