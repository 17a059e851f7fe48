package hooks

import (
	"context"

	"github.com/soyeahso/shopchat/internal/logging"
)

// AuditHandlerName is the handler name used by RegisterAuditLog.
const AuditHandlerName = "audit-log"

// RegisterAuditLog logs every known event, with its data as structured
// fields, on the "audit" subsystem.
func RegisterAuditLog(m *Manager, log *logging.Logger) {
	audit := log.Sub("audit")
	for _, event := range AllEvents {
		m.On(event, AuditHandlerName, func(_ context.Context, p Payload) error {
			audit.Info().Str("event", p.Event).Fields(p.Data).Msg("hook")
			return nil
		})
	}
}
