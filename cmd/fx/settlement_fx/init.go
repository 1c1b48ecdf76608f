package settlement_fx

import (
	"os"
	"time"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"giftvault/internal/gateway"
	"giftvault/internal/repositories"
	"giftvault/internal/services"
)

var Module = fx.Provide(
	provideGateway, providePaymentRepository, provideOrchestrator,
)

func provideGateway() gateway.PaymentGateway {
	cfg := gateway.Config{
		BaseURL:       os.Getenv("GATEWAY_BASE_URL"),
		APIKey:        os.Getenv("GATEWAY_API_KEY"),
		WebhookSecret: os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		Timeout:       10 * time.Second,
	}
	return gateway.NewHTTPGateway(cfg)
}

func providePaymentRepository(db *gorm.DB) repositories.IPaymentRepository {
	return repositories.NewPaymentRepository(db)
}

func provideOrchestrator(
	cardRepo repositories.ICardRepository,
	paymentRepo repositories.IPaymentRepository,
	gw gateway.PaymentGateway) services.IPaymentOrchestrator {
	return services.NewPaymentOrchestrator(cardRepo, paymentRepo, gw)
}
