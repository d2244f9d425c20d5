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
	"net/http"
	"os/signal"
	"syscall"

	"cashier-settlement-go/internal/auth"
	"cashier-settlement-go/internal/common"
	"cashier-settlement-go/internal/config"
	"cashier-settlement-go/internal/httpapi"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger(cfg.LogLevel)
	defer loggerCleanup()

	if cfg.Auth.JwtSecret == "" {
		zap.L().Fatal("JWT_SECRET is required")
	}
	if cfg.Auth.WebhookSecret == "" {
		zap.L().Warn("WEBHOOK_SECRET is not set, provider webhooks will be rejected")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	router := httpapi.NewRouter(httpapi.RouterParams{
		Handler:        httpapi.NewHandler(services.Cashier),
		Verifier:       auth.NewJWTVerifier(cfg.Auth.JwtSecret, cfg.Auth.JwtIssuer),
		Metrics:        services.Metrics,
		WebhookSecret:  cfg.Auth.WebhookSecret,
		AllowedOrigins: cfg.Server.CorsAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	zap.L().Info("Starting cashier server",
		zap.String("addr", cfg.Server.Addr),
		zap.String("provider", services.Provider.Name()))

	if err := httpapi.Serve(ctx, srv, cfg.Server.ShutdownTimeout); err != nil {
		zap.L().Error("Server stopped with error", zap.Error(err))
		return
	}
	zap.L().Info("Cashier server stopped")
}
