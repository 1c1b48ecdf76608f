package card_fx

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"giftvault/internal/api/controllers"
	"giftvault/internal/repositories"
	"giftvault/internal/services"
	mem "giftvault/pkg/memcache"
)

var Module = fx.Provide(
	provideCardRepository, provideCardService, provideCardController,
)

func provideCardRepository(db *gorm.DB) repositories.ICardRepository {
	return repositories.NewCardRepository(db)
}

func provideCardService(
	cardRepo repositories.ICardRepository,
	paymentRepo repositories.IPaymentRepository,
	orchestrator services.IPaymentOrchestrator,
	locks *mem.CardLocks,
	idemCache mem.IdempotencyStore) services.ICardService {
	return services.NewCardService(cardRepo, paymentRepo, orchestrator, locks, idemCache)
}

func provideCardController(cardService services.ICardService) *controllers.CardController {
	return controllers.NewCardController(cardService)
}
