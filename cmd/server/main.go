package main

import (
	"context"
	"log"
	"net/http"

	"github.com/joho/godotenv"

	webAdapter "cafepos/internal/adapters/web"
	"cafepos/internal/ai"
	"cafepos/internal/app"
	"cafepos/internal/cache"
	"cafepos/internal/config"
	"cafepos/internal/core"
	"cafepos/internal/db"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	var reportCache cache.ReportCache = cache.NopReportCache{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("Warning: redis unreachable, report cache disabled: %v", err)
		} else {
			defer redisCache.Close()
			reportCache = redisCache
		}
	}

	stockService := core.NewStockService(pool)
	saleService := core.NewSaleService(pool)
	invoiceService := core.NewInvoiceService(pool, stockService, core.LogPublisher{}, cfg.TaxRate, cfg.DefaultPOSAccountID)
	purchaseService := core.NewPurchaseService(pool, stockService, cfg.PurchasePriceDeviationRatio)
	recipeService := core.NewRecipeService(pool, stockService)
	adjustmentService := core.NewAdjustmentService(pool, stockService)
	reportingService := core.NewReportingService(pool)

	authorizer := core.StaticAuthorizer{Grants: core.DefaultGrants()}

	var agent *ai.Agent
	if cfg.OpenAIAPIKey == "" {
		log.Println("Warning: OPENAI_API_KEY is not set, day summaries disabled")
	} else {
		agent = ai.NewAgent(cfg.OpenAIAPIKey)
	}

	svc := app.NewAppService(saleService, invoiceService, purchaseService,
		recipeService, adjustmentService, reportingService, authorizer, reportCache)

	handler := webAdapter.NewHandler(svc, agent, cfg.AllowedOrigins)

	log.Printf("server starting on %s", cfg.Address())
	if err := http.ListenAndServe(cfg.Address(), handler); err != nil {
		log.Fatalf("server: %v", err)
	}
}
