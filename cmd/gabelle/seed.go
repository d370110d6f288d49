package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/alecgard/gabelle/internal/auth"
	"github.com/alecgard/gabelle/internal/config"
	"github.com/alecgard/gabelle/internal/pricing"
	"github.com/alecgard/gabelle/internal/usage"
	"github.com/alecgard/gabelle/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo account with sample usage history",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedCall struct {
	daysAgo          int
	model            string
	promptTokens     int64
	completionTokens int64
	requestType      string
	success          bool
	errorMessage     string
}

var demoCalls = []seedCall{
	{daysAgo: 0, model: "gpt-4o", promptTokens: 1200, completionTokens: 450, requestType: "chat.completion", success: true},
	{daysAgo: 0, model: "gpt-4o-mini", promptTokens: 800, completionTokens: 200, requestType: "chat.completion", success: true},
	{daysAgo: 1, model: "gpt-4o", promptTokens: 2400, completionTokens: 900, requestType: "assistant.run", success: true},
	{daysAgo: 1, model: "text-embedding-3-small", promptTokens: 5000, completionTokens: 0, requestType: "embedding", success: true},
	{daysAgo: 3, model: "gpt-4o", promptTokens: 600, completionTokens: 0, requestType: "chat.completion", success: false, errorMessage: "upstream timeout"},
	{daysAgo: 8, model: "gpt-4", promptTokens: 1500, completionTokens: 700, requestType: "chat.completion", success: true},
	{daysAgo: 9, model: "gpt-4o-mini", promptTokens: 300, completionTokens: 120, requestType: "chat.completion", success: true},
	{daysAgo: 35, model: "gpt-4o", promptTokens: 4000, completionTokens: 1600, requestType: "assistant.run", success: true},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	key, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		return err
	}

	userStore := user.NewStore(pool, nil)
	u, err := userStore.Create(ctx, user.CreateUserInput{
		Email:        "demo@gabelle.local",
		Password:     "demo-password",
		Name:         "Demo User",
		APIKeyHash:   key.Hash,
		APIKeyPrefix: key.Prefix,
	})
	if err != nil {
		return fmt.Errorf("creating demo user: %w", err)
	}

	now := time.Now().UTC()
	records := make([]usage.Record, 0, len(demoCalls))
	for _, call := range demoCalls {
		records = append(records, usage.Record{
			ID:               uuid.NewString(),
			UserID:           u.ID,
			Model:            call.model,
			PromptTokens:     call.promptTokens,
			CompletionTokens: call.completionTokens,
			TotalTokens:      call.promptTokens + call.completionTokens,
			EstimatedCost:    pricing.Cost(call.model, call.promptTokens, call.completionTokens),
			RequestType:      call.requestType,
			Success:          call.success,
			ErrorMessage:     call.errorMessage,
			CreatedAt:        now.AddDate(0, 0, -call.daysAgo),
		})
	}

	usageStore := usage.NewStore(pool)
	if err := usageStore.BatchInsert(ctx, records); err != nil {
		return fmt.Errorf("inserting sample usage: %w", err)
	}

	fmt.Println("Seeded demo account:")
	fmt.Printf("  email:    demo@gabelle.local\n")
	fmt.Printf("  password: demo-password\n")
	fmt.Printf("  api key:  %s\n", plaintext)
	fmt.Printf("  records:  %d\n", len(records))
	return nil
}
