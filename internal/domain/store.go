package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
	// Event restricts audit queries to one event name, e.g. "arb.detected".
	Event string
}

// Audit event names.
const (
	AuditArbDetected = "arb.detected"
	AuditArchived    = "archive.arb_opportunities"
)

// OpportunityStore persists accepted arbitrage opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, runID string, opp ArbitrageOpportunity) error
	GetByID(ctx context.Context, id string) (ArbitrageOpportunity, error)
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
}

// ScanRunStore persists scan summaries.
type ScanRunStore interface {
	Insert(ctx context.Context, run ScanRun) error
	ListRecent(ctx context.Context, limit int) ([]ScanRun, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
