package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretCache caches Secrets Manager lookups with a TTL so restarts of the
// dispatch loop never hammer the API.
type SecretCache struct {
	mu         sync.RWMutex
	data       map[string]cacheItem
	defaultTTL time.Duration
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// NewSecretCache creates a cache with the given TTL.
func NewSecretCache(defaultTTL time.Duration) *SecretCache {
	return &SecretCache{
		data:       make(map[string]cacheItem),
		defaultTTL: defaultTTL,
	}
}

// Set stores a value in the cache.
func (c *SecretCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheItem{
		value:     value,
		expiresAt: time.Now().Add(c.defaultTTL),
	}
}

// Get looks up a value, dropping it if expired.
func (c *SecretCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.data[key]
	if !exists {
		return "", false
	}

	if time.Now().After(item.expiresAt) {
		delete(c.data, key)
		return "", false
	}

	return item.value, true
}

// SecretsClient reads the wallet encryption passphrase from AWS Secrets
// Manager when the deployment keeps it there instead of the environment.
type SecretsClient struct {
	client *secretsmanager.Client
	cache  *SecretCache
}

// NewSecretsClient builds a Secrets Manager client from the default AWS
// credential chain.
func NewSecretsClient(ctx context.Context) (*SecretsClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SecretsClient{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  NewSecretCache(15 * time.Minute),
	}, nil
}

// GetSecret fetches a secret string, serving from cache when fresh.
func (s *SecretsClient) GetSecret(ctx context.Context, secretID string) (string, error) {
	if cached, ok := s.cache.Get(secretID); ok {
		return cached, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret value: %w", err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret string is nil for %s", secretID)
	}

	s.cache.Set(secretID, *result.SecretString)
	return *result.SecretString, nil
}

// ResolvePassphrase fills Config.Crypto.Passphrase from Secrets Manager when
// AWS.SecretID is set and no passphrase came from the environment. The
// resolved value lives only in the config object for the process lifetime;
// there is no rotation path.
func ResolvePassphrase(ctx context.Context, cfg *Config) error {
	if cfg.Crypto.Passphrase != "" || cfg.AWS.SecretID == "" {
		return nil
	}

	client, err := NewSecretsClient(ctx)
	if err != nil {
		return err
	}

	secret, err := client.GetSecret(ctx, cfg.AWS.SecretID)
	if err != nil {
		return err
	}

	cfg.Crypto.Passphrase = secret
	return nil
}
