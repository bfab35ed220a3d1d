package middleware

import (
	"context"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/casapps/landregistry/src/internal/auth"
	"github.com/casapps/landregistry/src/internal/services"
)

// AuditRecorder stores audit entries
type AuditRecorder interface {
	Record(ctx context.Context, e services.AuditEntry)
}

// Auditor builds per-route audit middleware
type Auditor struct {
	recorder AuditRecorder
	enabled  bool
}

// NewAuditor creates an auditor; a disabled one passes requests through
func NewAuditor(recorder AuditRecorder, enabled bool) *Auditor {
	return &Auditor{recorder: recorder, enabled: enabled && recorder != nil}
}

// Audit records the outcome of the route as action on the resource named by
// the path parameter param. Failed attempts are recorded too.
func (a *Auditor) Audit(action, resourceType, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if !a.enabled {
			return next
		}
		return func(c echo.Context) error {
			err := next(c)

			entry := services.AuditEntry{
				Action:       action,
				ResourceType: resourceType,
				ResourceID:   c.Param(param),
				IPAddress:    c.RealIP(),
				UserAgent:    c.Request().UserAgent(),
				Err:          err,
			}
			if userID, uerr := auth.UserID(c); uerr == nil {
				entry.UserID = &userID
			}
			// created resources only have an id once the handler ran
			if entry.ResourceID == "" {
				if id, ok := c.Get(CreatedResourceKey).(uuid.UUID); ok {
					entry.ResourceID = id.String()
				}
			}

			a.recorder.Record(context.WithoutCancel(c.Request().Context()), entry)
			return err
		}
	}
}

// CreatedResourceKey is where handlers leave the id of a resource they
// created, for the audit trail
const CreatedResourceKey = "created_resource_id"
