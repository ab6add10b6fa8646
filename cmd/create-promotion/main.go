package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/domain"
	"github.com/jafarshop/tablepos/internal/repository/postgres"
)

func main() {
	codeFlag := flag.String("code", "", "Promotion code customers enter (stored upper-cased)")
	kindFlag := flag.String("kind", string(domain.DiscountKindPercentage), "Discount kind: percentage or fixed_amount")
	valueFlag := flag.Float64("value", 0, "Discount value (percent or amount)")
	limitFlag := flag.Int("usage-limit", 0, "Maximum redemptions, 0 for unlimited")
	rulesFlag := flag.String("rules", "", `Rules as JSON, e.g. [{"attribute":"cart_total","operator":"gte","value":500}]`)
	inactiveFlag := flag.Bool("inactive", false, "Create the promotion disabled")
	flag.Parse()

	code := strings.TrimSpace(*codeFlag)
	if code == "" {
		fmt.Println("Usage:")
		fmt.Println(`  go run cmd/create-promotion/main.go --code LUNCH10 --kind percentage --value 10 --rules '[{"attribute":"cart_total","operator":"gte","value":300}]'`)
		os.Exit(1)
	}

	kind := domain.DiscountKind(*kindFlag)
	if !kind.IsValid() {
		fmt.Fprintf(os.Stderr, "Error: unknown discount kind %q\n", *kindFlag)
		os.Exit(1)
	}
	if *valueFlag <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --value must be positive\n")
		os.Exit(1)
	}
	if kind == domain.DiscountKindPercentage && *valueFlag > 100 {
		fmt.Fprintf(os.Stderr, "Error: percentage cannot exceed 100\n")
		os.Exit(1)
	}

	var rules []domain.PromotionRule
	if *rulesFlag != "" {
		if err := json.Unmarshal([]byte(*rulesFlag), &rules); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --rules JSON: %v\n", err)
			os.Exit(1)
		}
	}

	promo := &domain.Promotion{
		Code:     code,
		Kind:     kind,
		Value:    *valueFlag,
		IsActive: !*inactiveFlag,
		Rules:    rules,
	}
	if *limitFlag > 0 {
		limit := *limitFlag
		promo.UsageLimit = &limit
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repos := postgres.NewRepositories(db, logger)
	if err := repos.Promotion.Create(context.Background(), promo); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create promotion: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Promotion created successfully!")
	fmt.Printf("  ID: %s\n", promo.ID)
	fmt.Printf("  Code: %s\n", promo.Code)
	fmt.Printf("  Kind: %s\n", promo.Kind)
	fmt.Printf("  Value: %.2f\n", promo.Value)
	fmt.Printf("  Rules: %d\n", len(promo.Rules))
}
