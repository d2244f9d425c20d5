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
	"regexp"

	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/config"
	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

func parseKyc(v string) (models.KycStatus, error) {
	switch s := models.KycStatus(v); s {
	case models.KycPending, models.KycApproved, models.KycRejected:
		return s, nil
	}
	return "", fmt.Errorf("invalid kyc status %q, expected pending, approved or rejected", v)
}

func main() {
	ctx := context.Background()

	nameFlag := flag.String("name", "", "Player's full name (required)")
	emailFlag := flag.String("email", "", "Player's email address (required)")
	idFlag := flag.String("id", "", "Player id (default: generated UUID)")
	kycFlag := flag.String("kyc", string(models.KycPending), "KYC status: pending, approved or rejected")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}
	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}
	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}
	kyc, err := parseKyc(*kycFlag)
	if err != nil {
		zap.L().Fatal("Invalid kyc status", zap.Error(err))
	}

	st, err := common.InitializeStore(ctx, cfg.Database)
	if err != nil {
		zap.L().Fatal("Failed to open store", zap.Error(err))
	}
	defer st.Close()

	playerId := *idFlag
	if playerId == "" {
		playerId = uuid.New().String()
	}

	zap.L().Info("Creating player",
		zap.String("id", playerId),
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag),
		zap.String("kyc_status", string(kyc)))

	player, err := st.CreatePlayer(ctx, store.CreatePlayerParams{
		Id:        playerId,
		Name:      *nameFlag,
		Email:     *emailFlag,
		KycStatus: kyc,
	})
	if err != nil {
		if errors.Is(err, store.ErrBadRequest) {
			zap.L().Fatal("Player already exists with this id or email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create player", zap.Error(err))
	}

	fmt.Println()
	common.PrintHeader("PLAYER CREATED", common.DefaultWidth)
	fmt.Printf("ID:    %s\n", player.Id)
	fmt.Printf("Name:  %s\n", player.Name)
	fmt.Printf("Email: %s\n", player.Email)
	fmt.Printf("KYC:   %s\n", player.KycStatus)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("Player created successfully", zap.String("id", player.Id))
}
