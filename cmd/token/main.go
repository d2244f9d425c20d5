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
	"flag"
	"fmt"
	"time"

	"cashier-settlement-go/internal/auth"
	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/config"
	"cashier-settlement-go/internal/models"

	"go.uber.org/zap"
)

// token mints a bearer token for local testing. Production tokens come from
// the platform's identity service.
func main() {
	idFlag := flag.String("id", "", "Actor id, the player id for players (required)")
	roleFlag := flag.String("role", string(models.RolePlayer), "player, reviewer, finance, admin or system")
	ttlFlag := flag.Duration("ttl", 0, "Token lifetime (default JWT_TOKEN_TTL)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if *idFlag == "" {
		zap.L().Fatal("--id is required")
	}
	if cfg.Auth.JwtSecret == "" {
		zap.L().Fatal("JWT_SECRET is required")
	}

	ttl := cfg.Auth.TokenTtl
	if *ttlFlag > 0 {
		ttl = *ttlFlag
	}

	actor := models.Actor{Id: *idFlag, Role: models.Role(*roleFlag)}
	token, expiresAt, err := auth.NewJWTSigner(cfg.Auth.JwtSecret, cfg.Auth.JwtIssuer).SignActor(actor, time.Now(), ttl)
	if err != nil {
		zap.L().Fatal("Failed to sign token", zap.Error(err))
	}

	zap.L().Info("Token issued",
		zap.String("actor", actor.String()),
		zap.Time("expires_at", expiresAt))
	fmt.Println(token)
}
