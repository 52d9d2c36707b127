package main

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"beaver_gateway/internal/billing"
	"beaver_gateway/internal/config"
	"beaver_gateway/internal/models"
	"beaver_gateway/internal/pricing"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

type seedModel struct {
	name        string
	displayName string
	provider    string
	inputPrice  string
	outputPrice string
}

// Base prices are per 1M tokens.
var catalog = []seedModel{
	{"gpt-4o", "GPT-4o", "openai", "2.50", "10.00"},
	{"gpt-4o-mini", "GPT-4o Mini", "openai", "0.15", "0.60"},
	{"gpt-4-turbo", "GPT-4 Turbo", "openai", "10.00", "30.00"},
	{"gpt-4", "GPT-4", "openai", "30.00", "60.00"},
	{"gpt-3.5-turbo", "GPT-3.5 Turbo", "openai", "0.50", "1.50"},
	{"o1-preview", "O1 Preview", "openai", "15.00", "60.00"},
	{"o1-mini", "O1 Mini", "openai", "3.00", "12.00"},
	{"claude-3-5-sonnet-20241022", "Claude 3.5 Sonnet", "anthropic", "3.00", "15.00"},
	{"claude-3-5-haiku-20241022", "Claude 3.5 Haiku", "anthropic", "1.00", "5.00"},
	{"claude-3-opus-20240229", "Claude 3 Opus", "anthropic", "15.00", "75.00"},
	{"claude-3-sonnet-20240229", "Claude 3 Sonnet", "anthropic", "3.00", "15.00"},
	{"claude-3-haiku-20240307", "Claude 3 Haiku", "anthropic", "0.25", "1.25"},
	{"gemini-1.5-pro", "Gemini 1.5 Pro", "google", "1.25", "5.00"},
	{"gemini-1.5-flash", "Gemini 1.5 Flash", "google", "0.075", "0.30"},
	{"gemini-pro", "Gemini Pro", "google", "0.50", "1.50"},
	{"gemini-pro-vision", "Gemini Pro Vision", "google", "0.50", "1.50"},
	{"gemini-1.0-pro", "Gemini 1.0 Pro", "google", "0.50", "1.50"},
	{"deepseek-chat", "DeepSeek Chat", "deepseek", "0.14", "0.28"},
	{"deepseek-coder", "DeepSeek Coder", "deepseek", "0.14", "0.28"},
	{"deepseek-reasoner", "DeepSeek Reasoner", "deepseek", "0.55", "2.19"},
	{"deepseek-v2", "DeepSeek V2", "deepseek", "0.14", "0.28"},
	{"deepseek-v2.5", "DeepSeek V2.5", "deepseek", "0.14", "0.28"},
	{"llama-3.1-sonar-small-128k-online", "Llama 3.1 Sonar Small (Online)", "perplexity", "0.20", "0.20"},
	{"llama-3.1-sonar-large-128k-online", "Llama 3.1 Sonar Large (Online)", "perplexity", "1.00", "1.00"},
	{"llama-3.1-sonar-small-128k-chat", "Llama 3.1 Sonar Small (Chat)", "perplexity", "0.20", "0.20"},
	{"llama-3.1-sonar-large-128k-chat", "Llama 3.1 Sonar Large (Chat)", "perplexity", "1.00", "1.00"},
	{"llama-3.1-70b-versatile", "Llama 3.1 70B Versatile", "perplexity", "0.59", "0.79"},
	{"llama-3.1-8b-instant", "Llama 3.1 8B Instant", "perplexity", "0.05", "0.05"},
	{"grok-beta", "Grok Beta", "xai", "0.50", "1.50"},
	{"grok-2", "Grok 2", "xai", "0.50", "1.50"},
	{"grok-2-vision-beta", "Grok 2 Vision Beta", "xai", "0.50", "1.50"},
}

// Seeds the model catalog, runs an initial pricing pass and provisions a demo
// account with a funded balance and an API key.
func main() {
	logger := utils.NewLogger("seed")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.NewDB(storage.DBConfig{DSN: cfg.Database.URL})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	modelRepo := db.NewModelRepository()

	added := 0
	for _, entry := range catalog {
		if _, err := modelRepo.GetActiveByName(ctx, entry.name); err == nil {
			continue
		}
		m := &models.Model{
			ID:              models.NewModelID(),
			Name:            entry.name,
			DisplayName:     entry.displayName,
			Provider:        entry.provider,
			Status:          models.ModelStatusActive,
			BaseInputPrice:  decimal.RequireFromString(entry.inputPrice),
			BaseOutputPrice: decimal.RequireFromString(entry.outputPrice),
		}
		if err := modelRepo.Create(ctx, m); err != nil {
			log.Fatalf("Failed to create model %s: %v", entry.name, err)
		}
		added++
	}
	logger.Info("catalog seeded", "added", added, "total", len(catalog))

	engine := pricing.NewEngine(modelRepo)
	result, err := engine.RecalculateAllPricing(ctx)
	if err != nil {
		log.Fatalf("Initial pricing run failed: %v", err)
	}
	logger.Info("initial pricing computed",
		"models", result.TotalModels, "p20", result.Percentiles.P20, "p80", result.Percentiles.P80)

	accountRepo := db.NewAccountRepository()
	demo, err := accountRepo.GetByEmail(ctx, "demo@example.com")
	if err != nil {
		if !errors.Is(err, storage.ErrAccountNotFound) {
			log.Fatalf("Failed to look up demo account: %v", err)
		}
		demo = &models.Account{
			ID:      models.NewAccountID(),
			Email:   "demo@example.com",
			Balance: decimal.Zero,
		}
		if err := accountRepo.Create(ctx, demo); err != nil {
			log.Fatalf("Failed to create demo account: %v", err)
		}

		ledger := billing.NewLedger(db)
		if _, err := ledger.Credit(ctx, demo.ID, decimal.NewFromInt(100), "Initial demo funding"); err != nil {
			log.Fatalf("Failed to fund demo account: %v", err)
		}

		plaintext := models.GenerateAPIKey()
		apiKey := &models.APIKey{
			ID:        uuid.New(),
			KeyHash:   utils.HashString(plaintext),
			Name:      "Demo Key",
			AccountID: demo.ID,
			Plan:      "free",
			IsActive:  true,
		}
		if err := db.NewAPIKeyRepository().Create(ctx, apiKey); err != nil {
			log.Fatalf("Failed to create demo API key: %v", err)
		}

		// Printed once; only the hash is stored.
		logger.Info("demo account provisioned", "account", demo.ID, "api_key", plaintext)
		return
	}

	logger.Info("demo account already present", "account", demo.ID)
}
