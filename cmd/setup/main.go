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
	"flag"
	"fmt"

	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/config"
	"cashier-settlement-go/internal/formance"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

func listPlayers(ctx context.Context, st store.LedgerStore, email string) {
	players, err := common.InitializePlayers(ctx, st, email)
	if err != nil {
		zap.L().Fatal("Failed to read players", zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("PLAYERS (%d)", len(players)), common.WideWidth)
	for i, p := range players {
		last := i == len(players)-1
		fmt.Printf("%s%s  %s <%s>  kyc=%s\n", common.BoxPrefix(last), p.Id, p.Name, p.Email, p.KycStatus)

		wallets, err := st.ListWallets(ctx, p.Id)
		if err != nil {
			zap.L().Error("Failed to list wallets", zap.String("player_id", p.Id), zap.Error(err))
			continue
		}
		for _, w := range wallets {
			fmt.Printf("%s  %-6s available=%s held=%s\n", common.BoxDetailPrefix(last), w.Currency, w.Available, w.Held)
		}
	}
	common.PrintSeparator("=", common.WideWidth)
}

func approveKyc(ctx context.Context, st store.LedgerStore, email string) {
	player, err := st.GetPlayerByEmail(ctx, email)
	if err != nil {
		zap.L().Fatal("Player not found", zap.String("email", email), zap.Error(err))
	}
	if err := st.SetKycStatus(ctx, player.Id, models.KycApproved); err != nil {
		zap.L().Fatal("Failed to approve kyc", zap.String("player_id", player.Id), zap.Error(err))
	}
	zap.L().Info("KYC approved", zap.String("player_id", player.Id), zap.String("email", email))
}

// verifyMirror checks every wallet against its local journal and against
// its mirrored Formance accounts.
func verifyMirror(ctx context.Context, cfg *models.Config, st store.LedgerStore) {
	currencies, err := common.LoadCurrencies(cfg.CurrenciesFile)
	if err != nil {
		zap.L().Fatal("Failed to load currencies", zap.Error(err))
	}
	mirror, err := formance.NewMirror(ctx, cfg.Formance, currencies)
	if err != nil {
		zap.L().Fatal("Failed to connect to Formance", zap.Error(err))
	}

	players, err := common.InitializePlayers(ctx, st, "")
	if err != nil {
		zap.L().Fatal("Failed to read players", zap.Error(err))
	}

	var checked, drifted int
	for _, p := range players {
		if err := checkJournal(ctx, st, p.Id); err != nil {
			zap.L().Error("Local journal check failed", zap.String("player_id", p.Id), zap.Error(err))
		}

		wallets, err := st.ListWallets(ctx, p.Id)
		if err != nil {
			zap.L().Error("Failed to list wallets", zap.String("player_id", p.Id), zap.Error(err))
			continue
		}
		for _, w := range wallets {
			d, err := mirror.CheckWallet(ctx, w)
			if err != nil {
				zap.L().Error("Failed to read mirrored balances", zap.String("wallet", w.Key().String()), zap.Error(err))
				continue
			}
			checked++
			if !d.InSync() {
				drifted++
				zap.L().Warn("Wallet drifted from mirror",
					zap.String("player_id", w.PlayerId),
					zap.String("currency", w.Currency),
					zap.String("local_available", d.LocalAvailable.String()),
					zap.String("mirror_available", d.MirrorAvailable.String()),
					zap.String("local_held", d.LocalHeld.String()),
					zap.String("mirror_held", d.MirrorHeld.String()))
			}
		}
	}

	zap.L().Info("Mirror verification complete", zap.Int("wallets", checked), zap.Int("drifted", drifted))
}

func checkJournal(ctx context.Context, st store.LedgerStore, playerId string) error {
	wallets, err := st.ListWallets(ctx, playerId)
	if err != nil {
		return err
	}
	for _, w := range wallets {
		if err := st.ReconcileWallet(ctx, w.Key()); err != nil {
			return fmt.Errorf("wallet %s: %w", w.Key(), err)
		}
	}
	return nil
}

func main() {
	ctx := context.Background()

	initFlag := flag.Bool("init", false, "Create the schema (and demo players when CREATE_DUMMY_USERS is set)")
	listFlag := flag.Bool("list", false, "List players and their wallets")
	emailFlag := flag.String("email", "", "Limit --list to one player")
	approveFlag := flag.String("approve-kyc", "", "Approve KYC for the player with this email")
	verifyFlag := flag.Bool("verify", false, "Check every wallet against its journal and the Formance mirror")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	st, err := common.InitializeStore(ctx, cfg.Database)
	if err != nil {
		zap.L().Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	if *initFlag {
		zap.L().Info("Schema ready", zap.String("driver", cfg.Database.Driver))
	}
	if *approveFlag != "" {
		approveKyc(ctx, st, *approveFlag)
	}
	if *verifyFlag {
		if !cfg.Formance.Enabled {
			zap.L().Fatal("--verify needs FORMANCE_ENABLED and the FORMANCE_* settings")
		}
		verifyMirror(ctx, cfg, st)
	}
	if *listFlag || (!*initFlag && *approveFlag == "" && !*verifyFlag) {
		listPlayers(ctx, st, *emailFlag)
	}
}
