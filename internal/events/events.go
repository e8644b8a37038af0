// Package events publishes pipeline lifecycle events to NATS.
//
// Events are advisory fan-out for downstream consumers (notification
// services, audit trails); publishing is fire-and-forget and a nil
// Publisher is a silent no-op, so the pipeline never blocks or fails on
// the event bus.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clausewise/internal/document"
)

// Subjects relative to the configured prefix.
const (
	SubjectDocumentProcessed = "document.processed"
	SubjectDocumentDeleted   = "document.deleted"
	SubjectRiskAlert         = "risk.alert"
)

// Config holds NATS connection options.
type Config struct {
	// URL of the NATS server. Empty disables event publishing.
	URL string
	// SubjectPrefix namespaces all subjects.
	SubjectPrefix string
}

// Publisher emits JSON events. The zero value and nil are both inert.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	logger *zap.Logger
}

// Connect dials the NATS server. An empty URL returns a nil Publisher,
// which every method treats as a no-op.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("clausewise"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "clausewise"
	}
	logger.Info("event publisher connected", zap.String("url", cfg.URL), zap.String("prefix", prefix))
	return &Publisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	_ = p.nc.Drain()
}

// DocumentProcessedEvent is emitted when a processing run completes.
type DocumentProcessedEvent struct {
	DocumentID  string            `json:"document_id"`
	Type        document.Type     `json:"type"`
	State       document.State    `json:"state"`
	RiskPosture document.Severity `json:"risk_posture"`
	ClauseCount int               `json:"clause_count"`
	AlertCount  int               `json:"alert_count"`
	Timestamp   time.Time         `json:"timestamp"`
}

// DocumentDeletedEvent is emitted when the delete saga reaches a terminal
// state.
type DocumentDeletedEvent struct {
	DocumentID string         `json:"document_id"`
	State      document.State `json:"state"`
	Timestamp  time.Time      `json:"timestamp"`
}

// RiskAlertEvent is emitted once per alert on a completed run.
type RiskAlertEvent struct {
	DocumentID string            `json:"document_id"`
	AlertID    string            `json:"alert_id"`
	RiskType   string            `json:"risk_type"`
	Severity   document.Severity `json:"severity"`
	ClauseIDs  []string          `json:"clause_ids"`
	Timestamp  time.Time         `json:"timestamp"`
}

// DocumentProcessed publishes a processing-complete event.
func (p *Publisher) DocumentProcessed(ev DocumentProcessedEvent) {
	ev.Timestamp = time.Now().UTC()
	p.publish(SubjectDocumentProcessed, ev)
}

// DocumentDeleted publishes a deletion event.
func (p *Publisher) DocumentDeleted(ev DocumentDeletedEvent) {
	ev.Timestamp = time.Now().UTC()
	p.publish(SubjectDocumentDeleted, ev)
}

// RiskAlertRaised publishes one alert event.
func (p *Publisher) RiskAlertRaised(ev RiskAlertEvent) {
	ev.Timestamp = time.Now().UTC()
	p.publish(SubjectRiskAlert, ev)
}

func (p *Publisher) publish(subject string, ev any) {
	if p == nil || p.nc == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("event marshal failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	full := p.prefix + "." + subject
	if err := p.nc.Publish(full, payload); err != nil {
		p.logger.Warn("event publish failed", zap.String("subject", full), zap.Error(err))
	}
}
