// Package nats delivers subject-lifecycle events between client instances
// and the processing service, so caches drop entries for deleted subjects
// without waiting for TTL expiry.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/kirillkom/docsync/internal/core/domain"
	"github.com/kirillkom/docsync/internal/infrastructure/resilience"
)

type Feed struct {
	conn       *nats.Conn
	subject    string
	instanceID string
	executor   *resilience.Executor
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func New(url, subject string) (*Feed, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Feed, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	instanceID := uuid.NewString()
	conn, err := nats.Connect(
		url,
		nats.Name("docsync-"+instanceID),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Feed{
		conn:       conn,
		subject:    subject,
		instanceID: instanceID,
		executor:   options.ResilienceExecutor,
	}, nil
}

func (f *Feed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
}

// PublishInvalidated announces that this client purged a subject. Best
// effort: the event is advisory, a lost message only delays other caches
// until their TTL or generation check catches up.
func (f *Feed) PublishInvalidated(ctx context.Context, subjectID string) error {
	event := domain.SubjectEvent{Kind: domain.EventSubjectDeleted, SubjectID: subjectID}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal subject event: %w", err)
	}

	call := func(context.Context) error {
		if err := f.conn.Publish(f.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if f.executor != nil {
		err = f.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTransientIfNeeded(err)
}

// Subscribe delivers every subject event to the handler until ctx ends.
// Plain subscription, no queue group: each client instance keeps its own
// cache and must see every event.
func (f *Feed) Subscribe(ctx context.Context, handler func(context.Context, domain.SubjectEvent) error) error {
	sub, err := f.conn.Subscribe(f.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}

		var event domain.SubjectEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("invalid subject event: %v", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			log.Printf("subject event handler error for %s: %v", event.SubjectID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := f.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := f.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
