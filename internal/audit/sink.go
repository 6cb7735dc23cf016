// Package audit is the append-only security event sink. Emission is
// asynchronous and bounded: a full queue drops the event with a warning, and
// a lost audit write never fails the request that produced it.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 1024

// Event is one audit entry. Username is empty for anonymous events.
type Event struct {
	Username     string
	Action       string
	ResourceType string
	ResourceID   string
	IPAddress    string
	UserAgent    string
	Details      map[string]interface{}
	At           time.Time
}

// Recorder is the durable side of the sink.
type Recorder interface {
	AppendAuditEvent(ctx context.Context, username, action, resourceType, resourceID,
		ipAddress, userAgent string, details []byte) error
}

// Sink buffers events and writes them from a single background worker.
type Sink struct {
	recorder Recorder
	logger   *slog.Logger
	queue    chan Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewSink starts the background writer. queueSize <= 0 picks the default.
func NewSink(recorder Recorder, logger *slog.Logger, queueSize int) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	s := &Sink{
		recorder: recorder,
		logger:   logger,
		queue:    make(chan Event, queueSize),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// AuthEvent records a security event attributed to a known user.
func (s *Sink) AuthEvent(username, action, ip, userAgent string, details map[string]interface{}) {
	s.emit(Event{
		Username:     username,
		Action:       action,
		ResourceType: "AUTH",
		ResourceID:   username,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Details:      details,
	})
}

// AnonymousAuthEvent records a security event with no resolvable user, e.g.
// a failed login against a nonexistent account.
func (s *Sink) AnonymousAuthEvent(action, ip, userAgent string, details map[string]interface{}) {
	s.emit(Event{
		Action:       action,
		ResourceType: "AUTH",
		IPAddress:    ip,
		UserAgent:    userAgent,
		Details:      details,
	})
}

// InvoiceValidation records an invoice-validation request before it is
// forwarded to the scoring service.
func (s *Sink) InvoiceValidation(username, invoiceNumber, ip, userAgent string, details map[string]interface{}) {
	s.emit(Event{
		Username:     username,
		Action:       "INVOICE_VALIDATION",
		ResourceType: "INVOICE",
		ResourceID:   invoiceNumber,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Details:      details,
	})
}

// Close stops accepting events and drains the queue.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
		<-s.done
	})
}

func (s *Sink) emit(e Event) {
	e.At = time.Now()
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("audit queue full, dropping event", "action", e.Action)
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for e := range s.queue {
		s.write(e)
	}
}

func (s *Sink) write(e Event) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		s.logger.Error("audit detail serialization failed", "action", e.Action, "error", err)
		details = []byte("{}")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.AppendAuditEvent(ctx, e.Username, e.Action, e.ResourceType,
		e.ResourceID, e.IPAddress, e.UserAgent, details); err != nil {
		s.logger.Error("audit write failed", "action", e.Action, "error", err)
	}
}
