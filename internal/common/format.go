package common

import (
	"fmt"
	"strings"
	"time"

	"cashier-settlement-go/internal/models"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintSeparatorNewline prints a separator with a newline before it
func PrintSeparatorNewline(char string, width int) {
	fmt.Println("\n" + strings.Repeat(char, width))
}

// PrintHeader prints a formatted header with title and separators
func PrintHeader(title string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a formatted footer with message and separators
func PrintFooter(message string, width int) {
	PrintSeparatorNewline("=", width)
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// PrintBoxSeparator prints a box-drawing separator line (for sub-sections)
func PrintBoxSeparator(width int) {
	fmt.Println("├" + strings.Repeat("─", width))
}

// BoxPrefix returns the appropriate box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// PrintBalances prints one line per currency with available, held and total
func PrintBalances(title string, balances []models.BalanceView) {
	PrintHeader(title, DefaultWidth)
	if len(balances) == 0 {
		fmt.Println("(no wallets)")
	}
	for i, b := range balances {
		fmt.Printf("%s%-6s available=%s held=%s total=%s\n",
			BoxPrefix(i == len(balances)-1), b.Currency, b.Available, b.Held, b.Total)
	}
	PrintSeparator("=", DefaultWidth)
}

// PrintTransaction prints a transaction and, when present, its history
func PrintTransaction(tx models.TransactionDetail) {
	PrintHeader(fmt.Sprintf("%s %s", tx.Type, tx.Id), WideWidth)
	fmt.Printf("player:      %s\n", tx.PlayerId)
	fmt.Printf("amount:      %s %s\n", tx.Amount, tx.Currency)
	fmt.Printf("state:       %s\n", tx.State)
	if tx.ProviderRef != "" {
		fmt.Printf("provider:    %s (attempts %d)\n", tx.ProviderRef, tx.PayoutAttempts)
	}
	if tx.Destination != "" {
		fmt.Printf("destination: %s\n", tx.Destination)
	}
	if tx.Reason != "" {
		fmt.Printf("reason:      %s\n", tx.Reason)
	}
	if len(tx.Events) > 0 {
		PrintBoxSeparator(WideWidth - 1)
		for i, e := range tx.Events {
			last := i == len(tx.Events)-1
			from := e.From
			if from == "" {
				from = "-"
			}
			fmt.Printf("%s%s  %s -> %s by %s:%s\n", BoxPrefix(last),
				e.CreatedAt.Format(time.RFC3339), from, e.To, e.ActorRole, e.ActorId)
			if e.Reason != "" {
				fmt.Printf("%s   %s\n", BoxDetailPrefix(last), e.Reason)
			}
		}
	}
	PrintSeparator("=", WideWidth)
}

// PrintTransactions prints a history page as a table
func PrintTransactions(page models.TransactionPage) {
	PrintHeader(fmt.Sprintf("Transactions (offset %d, limit %d)", page.Offset, page.Limit), WideWidth)
	for _, t := range page.Transactions {
		fmt.Printf("%-36s  %-10s  %-22s  %14s %-5s  %s\n",
			t.Id, t.Type, t.State, t.Amount, t.Currency, t.CreatedAt.Format(time.RFC3339))
	}
	if len(page.Transactions) == 0 {
		fmt.Println("(none)")
	}
	PrintSeparator("=", WideWidth)
}
