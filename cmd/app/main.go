package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"giftvault/cmd/fx/card_fx"
	"giftvault/cmd/fx/db_fx"
	"giftvault/cmd/fx/memcache_fx"
	"giftvault/cmd/fx/settlement_fx"
	"giftvault/cmd/fx/webhook_fx"
	"giftvault/internal/api/controllers"
	"giftvault/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	app := fx.New(
		db_fx.Module,
		memcache_fx.Module,
		settlement_fx.Module,
		card_fx.Module,
		webhook_fx.Module,

		fx.Provide(ProvideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func StartServer(lc fx.Lifecycle, engine *gin.Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Println("Starting HTTP server at ${PORT}")
				if err := engine.Run(":" + os.Getenv("PORT")); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Stopping HTTP server")
			return nil
		},
	})
}

func ProvideRouter(
	cardController *controllers.CardController,
	webhookController *controllers.WebhookController) *gin.Engine {

	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.TraceIDMiddleware())

	RegisterRoutes(r, cardController, webhookController)

	return r
}

func RegisterRoutes(r *gin.Engine,
	cardController *controllers.CardController,
	webhookController *controllers.WebhookController) {

	cards := r.Group("/cards")
	cards.GET("/:code/balance", cardController.CheckBalance)

	authed := cards.Group("")
	authed.Use(middleware.JWTAuthMiddleware())
	authed.POST("/redeem", cardController.Redeem)
	authed.POST("/recharge", cardController.Recharge)
	authed.POST("/purchase", cardController.Purchase)
	authed.GET("/:code/transactions", cardController.History)
	authed.GET("/:code/audit", cardController.Audit)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(), middleware.RoleMiddleware("admin"))
	admin.POST("/cards/:code/deactivate", cardController.Deactivate)
	admin.POST("/webhooks/replay", webhookController.ReplayPending)

	// The gateway authenticates by payload signature, not bearer token.
	r.POST("/webhooks/payment-gateway", webhookController.HandleGatewayEvent)
}
