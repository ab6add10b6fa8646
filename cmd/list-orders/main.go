package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/jafarshop/tablepos/internal/config"
	"github.com/jafarshop/tablepos/internal/repository/postgres"
)

func main() {
	limit := flag.Int("limit", 20, "Number of orders to print")
	withLines := flag.Bool("lines", false, "Print order lines")
	flag.Parse()

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
	ctx := context.Background()

	orders, err := repos.Order.List(ctx, *limit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list orders: %v\n", err)
		os.Exit(1)
	}

	if len(orders) == 0 {
		fmt.Println("No orders found.")
		return
	}

	for i, order := range orders {
		fmt.Printf("Order #%d:\n", i+1)
		fmt.Printf("  ID: %s\n", order.ID)
		fmt.Printf("  Table: %s\n", order.TableRef)
		fmt.Printf("  Status: %s\n", order.Status)
		fmt.Printf("  Total: %.2f (discount %.2f)\n", order.TotalAmount, order.DiscountAmount)
		if order.AppliedPromotionID != nil {
			fmt.Printf("  Promotion: %s\n", order.AppliedPromotionID)
		}
		if order.SpecialInstructions != nil {
			fmt.Printf("  Notes: %s\n", *order.SpecialInstructions)
		}
		fmt.Printf("  Created: %s\n", order.CreatedAt.Format("2006-01-02 15:04:05"))

		if *withLines {
			lines, err := repos.OrderLine.GetByOrderID(ctx, order.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  Failed to load lines: %v\n", err)
				continue
			}
			for _, line := range lines {
				fmt.Printf("    %dx %s @ %.2f\n", line.Quantity, line.Name, line.UnitPrice)
				for _, opt := range line.Options {
					fmt.Printf("       %s: %s\n", opt.Group, opt.Choice)
				}
			}
		}
		fmt.Println()
	}

	fmt.Printf("Total: %d order(s)\n", len(orders))
}
