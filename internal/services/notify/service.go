package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	entsvc "github.com/ecojiaflow/ecolojia-backend/internal/services/entitlements"
)

// Sender delivers one templated message to a user. The mail provider client
// lives behind this interface so tests and local runs can stub it out.
type Sender interface {
	Send(ctx context.Context, userID int64, template string) error
}

var effectTemplates = map[entsvc.SideEffect]string{
	entsvc.EffectSendWelcomeEmail:       "premium_welcome",
	entsvc.EffectSendCancellationNotice: "subscription_cancelled",
	entsvc.EffectSendPaymentFailedAlert: "payment_failed",
}

type Service struct {
	sender  Sender
	logger  *zap.Logger
	timeout time.Duration
}

func NewService(sender Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		sender:  sender,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Notify delivers asynchronously; a lost email never blocks or fails the
// billing transition that triggered it.
func (s *Service) Notify(ctx context.Context, userID int64, effect entsvc.SideEffect) {
	template, ok := effectTemplates[effect]
	if !ok {
		s.logger.Warn("no template for notification effect", zap.String("effect", string(effect)))
		return
	}
	if s.sender == nil {
		s.logger.Info("notification skipped, no sender configured",
			zap.Int64("user_id", userID),
			zap.String("template", template))
		return
	}

	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.sender.Send(sendCtx, userID, template); err != nil {
			s.logger.Warn("notification delivery failed",
				zap.Int64("user_id", userID),
				zap.String("template", template),
				zap.Error(err))
			return
		}

		s.logger.Info("notification sent",
			zap.Int64("user_id", userID),
			zap.String("template", template))
	}()
}
