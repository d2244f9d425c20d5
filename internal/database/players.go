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

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cashier-settlement-go/internal/models"
	"cashier-settlement-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Service) ListPlayers(ctx context.Context) ([]models.Player, error) {
	zap.L().Debug("Querying active players")

	rows, err := s.db.QueryContext(ctx, queryListPlayers)
	if err != nil {
		zap.L().Error("Failed to query players", zap.Error(err))
		return nil, fmt.Errorf("unable to query players: %w", err)
	}
	defer func(rows *sql.Rows) {
		if err := rows.Close(); err != nil {
			zap.L().Warn("Failed to close rows", zap.Error(err))
		}
	}(rows)

	var players []models.Player
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			zap.L().Error("Failed to scan player row", zap.Error(err))
			return nil, fmt.Errorf("unable to scan player row: %w", err)
		}
		players = append(players, *player)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during player row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating player rows: %w", err)
	}

	zap.L().Info("Retrieved players", zap.Int("count", len(players)))
	return players, nil
}

func (s *Service) GetPlayer(ctx context.Context, playerId string) (*models.Player, error) {
	zap.L().Debug("Querying player by ID", zap.String("player_id", playerId))

	player, err := scanPlayer(s.db.QueryRowContext(ctx, queryGetPlayerById, playerId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: player %s", store.ErrNotFound, playerId)
		}
		zap.L().Error("Failed to query player by ID", zap.String("player_id", playerId), zap.Error(err))
		return nil, fmt.Errorf("unable to query player by ID: %w", err)
	}
	return player, nil
}

func (s *Service) GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error) {
	zap.L().Debug("Querying player by email", zap.String("email", email))

	player, err := scanPlayer(s.db.QueryRowContext(ctx, queryGetPlayerByEmail, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: player with email %s", store.ErrNotFound, email)
		}
		zap.L().Error("Failed to query player by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("unable to query player by email: %w", err)
	}
	return player, nil
}

func (s *Service) CreatePlayer(ctx context.Context, params store.CreatePlayerParams) (*models.Player, error) {
	id := params.Id
	if id == "" {
		id = uuid.New().String()
	}
	kyc := params.KycStatus
	if kyc == "" {
		kyc = models.KycPending
	}

	zap.L().Info("Creating player", zap.String("player_id", id), zap.String("email", params.Email))

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, queryInsertPlayer, id, params.Name, params.Email, string(kyc), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: player %s or email %s already exists", store.ErrBadRequest, params.Id, params.Email)
		}
		zap.L().Error("Failed to create player", zap.String("email", params.Email), zap.Error(err))
		return nil, fmt.Errorf("unable to create player: %w", err)
	}

	return s.GetPlayer(ctx, id)
}

func (s *Service) SetKycStatus(ctx context.Context, playerId string, status models.KycStatus) error {
	result, err := s.db.ExecContext(ctx, queryUpdateKycStatus, string(status), s.now().UTC(), playerId)
	if err != nil {
		return fmt.Errorf("unable to update kyc status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: player %s", store.ErrNotFound, playerId)
	}

	zap.L().Info("Player KYC status updated", zap.String("player_id", playerId), zap.String("kyc_status", string(status)))
	return nil
}
