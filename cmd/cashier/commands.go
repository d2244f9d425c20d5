/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"cashier-settlement-go/internal/cashierclient"
	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func parseAmount(v string) (decimal.Decimal, error) {
	if v == "" {
		return decimal.Zero, errors.New("--amount is required")
	}
	amount, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}
	return amount, nil
}

func required(flags map[string]string) error {
	var missing []string
	for name, v := range flags {
		if v == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required flags: %s", strings.Join(missing, ", "))
	}
	return nil
}

func printOutcome(out *cashierclient.Outcome) {
	if out.Replayed {
		fmt.Println("(replayed from an earlier identical request)")
	}
	common.PrintTransaction(models.TransactionDetail{TransactionRecord: out.Transaction})
}

func runDeposit(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("deposit", flag.ExitOnError)
	player := fs.String("player", "", "Player id (required)")
	currency := fs.String("currency", "", "Currency symbol (required)")
	amountFlag := fs.String("amount", "", "Amount (required)")
	ref := fs.String("ref", "", "Provider reference (staff only), generated when empty")
	_ = fs.Parse(args)

	if err := required(map[string]string{"player": *player, "currency": *currency}); err != nil {
		return err
	}
	amount, err := parseAmount(*amountFlag)
	if err != nil {
		return err
	}

	out, err := c.Deposit(ctx, models.DepositRequest{PlayerId: *player, Currency: *currency, Amount: amount, ProviderRef: *ref})
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func runWithdraw(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ExitOnError)
	player := fs.String("player", "", "Player id (required)")
	currency := fs.String("currency", "", "Currency symbol (required)")
	amountFlag := fs.String("amount", "", "Amount (required)")
	destination := fs.String("destination", "", "Payout destination (required)")
	_ = fs.Parse(args)

	if err := required(map[string]string{"player": *player, "currency": *currency, "destination": *destination}); err != nil {
		return err
	}
	amount, err := parseAmount(*amountFlag)
	if err != nil {
		return err
	}

	out, err := c.Withdraw(ctx, models.WithdrawalRequest{PlayerId: *player, Currency: *currency, Amount: amount, Destination: *destination})
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

// transitionCommand builds the commands that take -id, -reason and -expected.
func transitionCommand(name string, op func(*cashierclient.Cashier, context.Context, string, models.TransitionRequest) (*cashierclient.Outcome, error)) func(context.Context, *cashierclient.Cashier, *models.Config, []string) error {
	return func(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		id := fs.String("id", "", "Transaction id (required)")
		reason := fs.String("reason", "", "Reason recorded with the transition")
		expected := fs.String("expected", "", "Fail unless the transaction is in this state")
		_ = fs.Parse(args)

		if err := required(map[string]string{"id": *id}); err != nil {
			return err
		}
		out, err := op(c, ctx, *id, models.TransitionRequest{Reason: *reason, ExpectedState: *expected})
		if err != nil {
			return err
		}
		printOutcome(out)
		return nil
	}
}

var (
	runApprove    = transitionCommand("approve", (*cashierclient.Cashier).Approve)
	runReject     = transitionCommand("reject", (*cashierclient.Cashier).Reject)
	runMarkPaid   = transitionCommand("mark-paid", (*cashierclient.Cashier).MarkPaid)
	runMarkFailed = transitionCommand("mark-failed", (*cashierclient.Cashier).MarkFailed)
)

func payoutCommand(name string, op func(*cashierclient.Cashier, context.Context, string) (*cashierclient.Outcome, error)) func(context.Context, *cashierclient.Cashier, *models.Config, []string) error {
	return func(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		id := fs.String("id", "", "Transaction id (required)")
		_ = fs.Parse(args)

		if err := required(map[string]string{"id": *id}); err != nil {
			return err
		}
		out, err := op(c, ctx, *id)
		if err != nil {
			return err
		}
		printOutcome(out)
		return nil
	}
}

var (
	runPayout = payoutCommand("payout", (*cashierclient.Cashier).StartPayout)
	runRetry  = payoutCommand("retry", (*cashierclient.Cashier).RetryPayout)
)

func runBalance(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("balance", flag.ExitOnError)
	player := fs.String("player", "", "Player id (required)")
	currency := fs.String("currency", "", "Currency symbol (required)")
	_ = fs.Parse(args)

	if err := required(map[string]string{"player": *player, "currency": *currency}); err != nil {
		return err
	}
	view, err := c.Client().GetBalance(ctx, *player, *currency)
	if err != nil {
		return err
	}
	common.PrintBalances("Balance of "+*player, []models.BalanceView{*view})
	return nil
}

func runHistory(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	player := fs.String("player", "", "Player id (required)")
	txType := fs.String("type", "", "deposit or withdrawal")
	state := fs.String("state", "", "Only transactions in this state")
	currency := fs.String("currency", "", "Only this currency")
	limit := fs.Int("limit", 0, "Page size")
	offset := fs.Int("offset", 0, "Page offset")
	_ = fs.Parse(args)

	if err := required(map[string]string{"player": *player}); err != nil {
		return err
	}
	page, err := c.Client().ListTransactions(ctx, *player, cashierclient.Query{
		Type: *txType, State: *state, Currency: *currency, Limit: *limit, Offset: *offset,
	})
	if err != nil {
		return err
	}
	common.PrintTransactions(*page)
	return nil
}

func runShow(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "Transaction id (required)")
	_ = fs.Parse(args)

	if err := required(map[string]string{"id": *id}); err != nil {
		return err
	}
	detail, err := c.Client().GetTransaction(ctx, *id)
	if err != nil {
		return err
	}
	common.PrintTransaction(*detail)
	return nil
}

func runAwait(ctx context.Context, c *cashierclient.Cashier, _ *models.Config, args []string) error {
	fs := flag.NewFlagSet("await", flag.ExitOnError)
	id := fs.String("id", "", "Transaction id (required)")
	states := fs.String("state", "", "Comma separated states to wait for (required)")
	interval := fs.Duration("interval", 0, "First poll interval")
	attempts := fs.Int("attempts", 0, "Maximum number of polls")
	_ = fs.Parse(args)

	if err := required(map[string]string{"id": *id, "state": *states}); err != nil {
		return err
	}

	cfg := cashierclient.DefaultPollConfig()
	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *attempts > 0 {
		cfg.MaxAttempts = *attempts
	}

	var want []string
	for _, s := range strings.Split(*states, ",") {
		if s = strings.TrimSpace(s); s != "" {
			want = append(want, s)
		}
	}

	start := time.Now()
	detail, err := c.AwaitState(ctx, *id, cfg, want...)
	if errors.Is(err, coordinator.ErrPollExhausted) && detail != nil {
		zap.L().Warn("Transaction did not reach the awaited state",
			zap.String("transaction_id", *id),
			zap.String("state", detail.State),
			zap.Strings("awaited", want))
	}
	if err != nil {
		return err
	}

	zap.L().Info("Transaction reached awaited state",
		zap.String("transaction_id", *id),
		zap.String("state", detail.State),
		zap.Duration("waited", time.Since(start)))
	common.PrintTransaction(*detail)
	return nil
}

// runSettle plays the provider's part against a sandbox deployment.
func runSettle(ctx context.Context, c *cashierclient.Cashier, cfg *models.Config, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	ref := fs.String("ref", "", "Provider reference (required)")
	kind := fs.String("kind", "", "deposit or payout (required)")
	outcome := fs.String("outcome", "success", "success or failure")
	event := fs.String("event", "", "Provider event id")
	amount := fs.String("amount", "", "Amount the provider moved (optional)")
	_ = fs.Parse(args)

	if err := required(map[string]string{"ref": *ref, "kind": *kind}); err != nil {
		return err
	}
	if cfg.Auth.WebhookSecret == "" {
		return errors.New("WEBHOOK_SECRET is required to sign provider events")
	}

	ack, err := c.Client().SendProviderEvent(ctx, cfg.Auth.WebhookSecret, models.ProviderEvent{
		EventId: *event, ProviderRef: *ref, Kind: *kind, Outcome: *outcome, Amount: *amount,
	})
	if err != nil {
		return err
	}
	fmt.Printf("result: %s", ack.Result)
	if ack.TransactionId != "" {
		fmt.Printf(" (transaction %s)", ack.TransactionId)
	}
	fmt.Println()
	return nil
}
