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

package common

import (
	"context"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"go.uber.org/zap"
)

// InitializePlayers retrieves players based on an optional email filter.
// If emailFilter is provided, returns a single player with that email.
// If emailFilter is empty, returns all players.
func InitializePlayers(ctx context.Context, st store.LedgerStore, emailFilter string) ([]models.Player, error) {
	if emailFilter != "" {
		zap.L().Info("Looking up player by email", zap.String("email", emailFilter))
		player, err := st.GetPlayerByEmail(ctx, emailFilter)
		if err != nil {
			return nil, fmt.Errorf("player not found: %w", err)
		}
		return []models.Player{*player}, nil
	}

	players, err := st.ListPlayers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get players: %w", err)
	}

	zap.L().Info("Retrieved players", zap.Int("count", len(players)))
	return players, nil
}
