package webhook_fx

import (
	"context"
	"log"
	"os"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"giftvault/internal/api/controllers"
	"giftvault/internal/repositories"
	"giftvault/internal/services"
)

var Module = fx.Options(
	fx.Provide(
		provideWebhookEventRepository,
		provideFraudAlertRepository,
		provideWebhookService,
		provideWebhookController,
	),
	fx.Invoke(replayPendingOnStart),
)

func provideWebhookEventRepository(db *gorm.DB) repositories.IWebhookEventRepository {
	return repositories.NewWebhookEventRepository(db)
}

func provideFraudAlertRepository(db *gorm.DB) repositories.IFraudAlertRepository {
	return repositories.NewFraudAlertRepository(db)
}

func provideWebhookService(
	eventRepo repositories.IWebhookEventRepository,
	paymentRepo repositories.IPaymentRepository,
	cardRepo repositories.ICardRepository,
	fraudRepo repositories.IFraudAlertRepository) services.IWebhookService {
	return services.NewWebhookService(
		os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		eventRepo, paymentRepo, cardRepo, fraudRepo)
}

func provideWebhookController(webhookService services.IWebhookService) *controllers.WebhookController {
	return controllers.NewWebhookController(webhookService)
}

// replayPendingOnStart re-runs events whose processing was interrupted by a
// crash or deploy; safe because event processing is idempotent.
func replayPendingOnStart(lc fx.Lifecycle, webhookService services.IWebhookService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				attempted := webhookService.ReprocessPending(context.Background())
				if attempted > 0 {
					log.Printf("webhook replay on start: attempted %d events", attempted)
				}
			}()
			return nil
		},
	})
}
