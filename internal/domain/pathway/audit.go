package pathway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/urocare/pathway/internal/platform/auth"
)

const auditWriteTimeout = 5 * time.Second

// AuditLog appends validation and compliance records. Writes never fail the
// caller: errors are logged and dropped, and a tripped breaker skips writes
// until the store recovers.
type AuditLog struct {
	validations ValidationLogRepository
	compliance  ComplianceLogRepository
	breaker     *gobreaker.CircuitBreaker
	logger      zerolog.Logger
}

func NewAuditLog(validations ValidationLogRepository, compliance ComplianceLogRepository, maxFailures uint32, logger zerolog.Logger) *AuditLog {
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        "pathway-audit",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("audit breaker state changed")
		},
	}
	return &AuditLog{
		validations: validations,
		compliance:  compliance,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		logger:      logger,
	}
}

func (a *AuditLog) recordValidation(ctx context.Context, l *ValidationLog) {
	l.ActingUser = actingUser(ctx)
	a.write(ctx, "pathway_validation_log", func(ctx context.Context) error {
		return a.validations.Create(ctx, l)
	})
}

func (a *AuditLog) recordCompliance(ctx context.Context, l *ComplianceLog) {
	l.ActingUser = actingUser(ctx)
	a.write(ctx, "compliance_check_log", func(ctx context.Context) error {
		return a.compliance.Create(ctx, l)
	})
}

func (a *AuditLog) write(ctx context.Context, table string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	_, err := a.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		a.logger.Debug().Str("table", table).Msg("audit write skipped, breaker open")
	default:
		a.logger.Error().Err(err).Str("table", table).Msg("audit write failed")
	}
}

func actingUser(ctx context.Context) *string {
	if id := auth.UserIDFromContext(ctx); id != "" {
		return &id
	}
	return nil
}
