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
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"cashier-settlement-go/internal/auth"
	"cashier-settlement-go/internal/cashierclient"
	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/config"
	"cashier-settlement-go/internal/coordinator"
	"cashier-settlement-go/internal/models"

	"go.uber.org/zap"
)

type command struct {
	usage string
	run   func(ctx context.Context, c *cashierclient.Cashier, cfg *models.Config, args []string) error
}

var commands = map[string]command{
	"deposit":     {"-player ID -currency USD -amount 100 [-ref PROVIDER_REF]", runDeposit},
	"withdraw":    {"-player ID -currency USD -amount 50 -destination ADDR", runWithdraw},
	"approve":     {"-id TX [-reason TEXT] [-expected STATE]", runApprove},
	"reject":      {"-id TX -reason TEXT [-expected STATE]", runReject},
	"payout":      {"-id TX", runPayout},
	"retry":       {"-id TX", runRetry},
	"mark-paid":   {"-id TX -reason TEXT", runMarkPaid},
	"mark-failed": {"-id TX -reason TEXT", runMarkFailed},
	"balance":     {"-player ID -currency USD", runBalance},
	"history":     {"-player ID [-type T] [-state S] [-currency C] [-limit N] [-offset N]", runHistory},
	"show":        {"-id TX", runShow},
	"await":       {"-id TX -state paid,rejected [-interval 1s] [-attempts 30]", runAwait},
	"settle":      {"-ref PROVIDER_REF -kind deposit|payout -outcome success|failure [-event ID]", runSettle},
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cashier <command> [flags]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if cfg.Coordinator.Token == "" {
		zap.L().Fatal("CASHIER_TOKEN is required, mint one with cmd/token")
	}
	actor, err := auth.PeekActor(cfg.Coordinator.Token)
	if err != nil {
		zap.L().Fatal("Invalid CASHIER_TOKEN", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord := coordinator.New(cfg.Coordinator, coordinator.WithObserver(func(t coordinator.Transition) {
		zap.L().Debug("Idempotency entry changed",
			zap.String("idempotency_key", t.Entry.Key()),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.Int("attempts", t.Entry.Attempts))
	}))
	client := cashierclient.New(cfg.Coordinator.ServerUrl, cfg.Coordinator.Token)
	cashier := cashierclient.NewCashier(client, coord, actor)

	if err := cmd.run(ctx, cashier, cfg, os.Args[2:]); err != nil {
		zap.L().Error("Command failed",
			zap.String("command", os.Args[1]),
			zap.String("actor", actor.String()),
			zap.Error(err))
		os.Exit(1)
	}
}
