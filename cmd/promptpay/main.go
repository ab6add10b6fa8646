package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/jafarshop/tablepos/internal/payload"
)

func main() {
	targetFlag := flag.String("target", "", "Phone number, national ID, tax ID or e-wallet ID")
	amountFlag := flag.Float64("amount", 0, "Amount in THB, omit for an open-amount payload")
	flag.Parse()

	if *targetFlag == "" {
		fmt.Println("Usage:")
		fmt.Println("  go run cmd/promptpay/main.go --target 0812345678 --amount 150.50")
		os.Exit(1)
	}

	var amount *float64
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "amount" {
			amount = amountFlag
		}
	})

	code, err := payload.Encode(*targetFlag, amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(code)
}
