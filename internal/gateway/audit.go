package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hms/console/internal/platform/middleware"
)

const auditWriteTimeout = 3 * time.Second

// Execer is the slice of *pgxpool.Pool the audit recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGAuditRecorder writes access entries to console_audit.
type PGAuditRecorder struct {
	db Execer
}

func NewPGAuditRecorder(db Execer) *PGAuditRecorder {
	return &PGAuditRecorder{db: db}
}

func (r *PGAuditRecorder) RecordAccess(e middleware.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO console_audit (
			session_id, username, user_roles, surface, resource, action,
			method, path, status_code, ip_address, user_agent, request_id, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.SessionID, e.Username, roles, e.Surface, e.Resource, e.Action,
		e.Method, e.Path, e.StatusCode, e.IPAddress, e.UserAgent, e.RequestID, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
