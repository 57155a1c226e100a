package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/clinic-scheduling/internal/audit"
	"github.com/wolfman30/clinic-scheduling/internal/locking"
	"github.com/wolfman30/clinic-scheduling/internal/observability/metrics"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

var tracer = otel.Tracer("clinic.internal.scheduling")

const (
	opScheduleCreate     = "schedule.create"
	opScheduleUpdate     = "schedule.update"
	opScheduleDelete     = "schedule.delete"
	opAppointmentCreate  = "appointment.create"
	opAppointmentResched = "appointment.reschedule"
	opAppointmentStatus  = "appointment.update_status"
	opAppointmentNote    = "appointment.add_note"
	opAppointmentDelete  = "appointment.delete"
)

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
}

// finish ends span and counts the operation under its outcome.
func finish(span trace.Span, m *metrics.SchedulingMetrics, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, outcome(err))
	}
	m.ObserveOperation(op, outcome(err))
	span.End()
}

// acquireDoctor takes the doctor's lock and records how long it waited.
func acquireDoctor(ctx context.Context, locker locking.Locker, m *metrics.SchedulingMetrics, op string, doctorID uuid.UUID) (func(), error) {
	started := time.Now()
	release, err := locker.Lock(ctx, doctorLockKey(doctorID))
	m.ObserveLockWait(op, time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("scheduling: acquire lock for doctor %s: %w", doctorID, err)
	}
	return release, nil
}

// recordAudit stores ev; a failed write is logged and never fails the
// already committed mutation.
func recordAudit(ctx context.Context, rec AuditRecorder, logger *logging.Logger, ev audit.Event) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, ev); err != nil {
		logger.Warn("audit record failed",
			"event_type", string(ev.EventType),
			"entity_id", ev.EntityID.String(),
			"error", err,
		)
	}
}
