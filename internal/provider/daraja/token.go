package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const tokenCacheKey = "daraja:access_token"

// Tokens are reused until shortly before expiry so concurrent payments on one
// station share a single OAuth round trip.
const tokenExpiryMargin = 5 * time.Minute

// TokenSource fetches and caches gateway OAuth access tokens. When a Redis
// client is supplied, tokens are shared across processes; otherwise a local
// in-memory copy is kept.
type TokenSource struct {
	authURL        string
	consumerKey    string
	consumerSecret string
	rdb            *redis.Client
	client         *http.Client

	mu     sync.Mutex
	cached *accessToken
}

// accessToken is a cached gateway access token.
type accessToken struct {
	Token     string
	ExpiresAt time.Time
}

// NewTokenSource creates a token source. rdb may be nil.
func NewTokenSource(authURL, consumerKey, consumerSecret string, rdb *redis.Client) *TokenSource {
	return &TokenSource{
		authURL:        authURL,
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		rdb:            rdb,
		client:         &http.Client{Timeout: 30 * time.Second},
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// copy is missing or near expiry.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.cached.ExpiresAt.After(time.Now().Add(tokenExpiryMargin)) {
		return s.cached.Token, nil
	}

	if s.rdb != nil {
		if token, err := s.rdb.Get(ctx, tokenCacheKey).Result(); err == nil && token != "" {
			ttl, terr := s.rdb.TTL(ctx, tokenCacheKey).Result()
			if terr == nil && ttl > 0 {
				s.cached = &accessToken{Token: token, ExpiresAt: time.Now().Add(ttl)}
				return token, nil
			}
		} else if err != nil && !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("token cache read failed, fetching fresh token")
		}
	}

	token, expiresIn, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.cached = &accessToken{Token: token, ExpiresAt: time.Now().Add(expiresIn)}
	if s.rdb != nil {
		ttl := expiresIn - tokenExpiryMargin
		if ttl <= 0 {
			ttl = expiresIn
		}
		if err := s.rdb.Set(ctx, tokenCacheKey, token, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("token cache write failed")
		}
	}
	return token, nil
}

// fetch performs the client-credentials exchange.
func (s *TokenSource) fetch(ctx context.Context) (string, time.Duration, error) {
	if s.consumerKey == "" || s.consumerSecret == "" {
		return "", 0, fmt.Errorf("missing consumer key or secret")
	}

	auth := base64.StdEncoding.EncodeToString([]byte(s.consumerKey + ":" + s.consumerSecret))

	req, err := http.NewRequestWithContext(ctx, "GET", s.authURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("auth failed with status %d", resp.StatusCode)
	}

	var authResponse struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResponse); err != nil {
		return "", 0, fmt.Errorf("failed to parse auth response: %w", err)
	}

	expiresIn, err := strconv.Atoi(authResponse.ExpiresIn)
	if err != nil {
		expiresIn = 3600 // Daraja defaults to an hour
	}

	return authResponse.AccessToken, time.Duration(expiresIn) * time.Second, nil
}
