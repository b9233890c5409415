package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/solestride/api/internal/domain"
	"github.com/solestride/api/internal/repositories"
)

const ipHashPrefix = "sha256:"

var errAuditRepoMissing = errors.New("audit log service: repository is required")

// AuditLogger defines the logging contract used by the audit writer service.
type AuditLogger interface {
	Warnf(format string, args ...any)
}

// AuditLogServiceDeps bundles constructor inputs for the audit writer service.
type AuditLogServiceDeps struct {
	Repository repositories.AuditLogRepository
	Clock      func() time.Time
	Logger     AuditLogger
	HashSalt   string
}

type auditLogService struct {
	repo     repositories.AuditLogRepository
	clock    func() time.Time
	logger   AuditLogger
	hashSalt string
}

// NewAuditLogService creates an audit log writer backed by the supplied repository.
func NewAuditLogService(deps AuditLogServiceDeps) (AuditLogService, error) {
	if deps.Repository == nil {
		return nil, errAuditRepoMissing
	}

	svc := &auditLogService{
		repo:     deps.Repository,
		clock:    func() time.Time { return time.Now().UTC() },
		logger:   deps.Logger,
		hashSalt: deps.HashSalt,
	}
	if deps.Clock != nil {
		clock := deps.Clock
		svc.clock = func() time.Time { return clock().UTC() }
	}
	if svc.logger == nil {
		svc.logger = noopAuditLogger{}
	}
	return svc, nil
}

// Record appends an audit entry for a staff or customer mutation. Append
// failures are logged and swallowed so the mutation that triggered the entry
// still succeeds.
func (s *auditLogService) Record(ctx context.Context, record AuditLogRecord) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Append(ctx, s.buildEntry(record)); err != nil {
		s.logger.Warnf("audit log append failed: %v", err)
	}
}

// List retrieves paginated audit entries for the back office.
func (s *auditLogService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	if s.repo == nil {
		return domain.CursorPage[AuditLogEntry]{}, errAuditRepoMissing
	}

	repoFilter := repositories.AuditLogFilter{
		TargetRef: strings.TrimSpace(filter.TargetRef),
		Actor:     strings.TrimSpace(filter.Actor),
		ActorType: strings.TrimSpace(filter.ActorType),
		Action:    strings.TrimSpace(filter.Action),
		DateRange: filter.DateRange,
		Pagination: domain.Pagination{
			PageSize:  filter.Pagination.PageSize,
			PageToken: filter.Pagination.PageToken,
		},
	}
	page, err := s.repo.List(ctx, repoFilter)
	if err != nil {
		return domain.CursorPage[AuditLogEntry]{}, fmt.Errorf("audit log list: %w", err)
	}
	return domain.CursorPage[AuditLogEntry]{Items: page.Items, NextPageToken: page.NextPageToken}, nil
}

func (s *auditLogService) buildEntry(record AuditLogRecord) domain.AuditLogEntry {
	occurred := record.OccurredAt.UTC()
	if record.OccurredAt.IsZero() {
		occurred = s.clock()
	}

	entry := domain.AuditLogEntry{
		Actor:     trimPrintable(record.Actor, 160),
		ActorType: actorKind(record.ActorType, record.Actor),
		Action:    trimPrintable(record.Action, 120),
		TargetRef: trimPrintable(record.TargetRef, 200),
		Severity:  normalizeSeverity(record.Severity),
		RequestID: trimPrintable(record.RequestID, 128),
		UserAgent: trimPrintable(record.UserAgent, 256),
		Metadata:  cleanMetadata(record.Metadata),
		CreatedAt: occurred,
	}

	// Raw client addresses never land in the store, only a salted digest
	// usable for correlating entries from the same origin.
	if ip := strings.TrimSpace(record.IPAddress); ip != "" {
		entry.IPHash = ipHashPrefix + s.hashString(ip)
	}
	return entry
}

func (s *auditLogService) hashString(value string) string {
	sum := sha256.Sum256([]byte(s.hashSalt + strings.TrimSpace(value)))
	return hex.EncodeToString(sum[:])
}

type noopAuditLogger struct{}

func (noopAuditLogger) Warnf(string, ...any) {}

// actorKind normalizes the declared kind, falling back to what the actor
// reference itself reveals. Staff mutations flow through /staff/ refs, order
// webhooks record as system.
func actorKind(kind, actor string) string {
	normalized := strings.ToLower(strings.TrimSpace(kind))
	switch normalized {
	case "user", "staff", "system", "service":
		return normalized
	}

	actor = strings.ToLower(strings.TrimSpace(actor))
	for prefix, resolved := range map[string]string{
		"/users/": "user", "user:": "user",
		"/staff/": "staff", "staff:": "staff",
		"system:": "system",
	} {
		if strings.HasPrefix(actor, prefix) {
			return resolved
		}
	}
	if actor == "system" {
		return "system"
	}
	return "unknown"
}

func normalizeSeverity(severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "warn", "warning":
		return "warn"
	case "error":
		return "error"
	default:
		return "info"
	}
}

func cleanMetadata(metadata map[string]any) map[string]any {
	var result map[string]any
	for key, value := range metadata {
		key = trimPrintable(key, 80)
		if key == "" {
			continue
		}
		if result == nil {
			result = make(map[string]any, len(metadata))
		}
		if text, ok := value.(string); ok {
			value = trimPrintable(text, 512)
		}
		result[key] = value
	}
	return result
}

// trimPrintable trims, strips control runes, and caps the result at limit
// bytes. Audit entries are immutable so malformed input is cleaned on the
// way in rather than rejected.
func trimPrintable(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)

	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
