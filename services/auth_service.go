package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"rps-arena/models"
	"rps-arena/store"
)

// AuthService resolves API keys to agents. Keys are stored as SHA-256 hex digests.
type AuthService struct {
	store Store
}

func NewAuthService(store Store) *AuthService {
	return &AuthService{store: store}
}

// HashAPIKey returns the digest stored for a key.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Authenticate looks the agent up by key.
func (s *AuthService) Authenticate(ctx context.Context, apiKey string) (*models.Agent, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrInvalidAPIKey
	}
	agent, err := s.store.AgentByAPIKeyHash(ctx, HashAPIKey(apiKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, fmt.Errorf("lookup agent: %w", err)
	}
	return agent, nil
}
