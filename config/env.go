package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvRPCEndpoint       = "WEB3_PROVIDER"
	EnvPrivateKey        = "PRIVATE_KEY"
	EnvConcentratedGraph = "UNISWAP_V3_SUBGRAPH"
	EnvWeightedGraph     = "BALANCER_SUBGRAPH"
	EnvSubgraphAPIKey    = "UNISWAP_API_KEY"
	EnvLoanReceiver      = "FLASH_LOAN_RECEIVER_ADDRESS"
	EnvRedisAddr         = "REDIS_ADDR"
	EnvRedisPassword     = "REDIS_PASSWORD"
	EnvDatabaseURL       = "DATABASE_URL"
	EnvPrivateRelayURL   = "PRIVATE_RELAY_URL"
	EnvRelayAuthKey      = "RELAY_AUTH_KEY"
)

// LoadEnv loads environment variables from .env file
func LoadEnv() error {
	return godotenv.Load()
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetRequiredEnv fails when key is unset or empty.
func GetRequiredEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("required environment variable %s not set", key)
	}
	return value, nil
}

// ApplyEnv overlays secrets and endpoints from the environment.
func (c *Config) ApplyEnv() {
	c.RPCEndpoint = GetEnvWithDefault(EnvRPCEndpoint, c.RPCEndpoint)
	c.PrivateKey = GetEnvWithDefault(EnvPrivateKey, c.PrivateKey)
	c.FlashLoan.Receiver = GetEnvWithDefault(EnvLoanReceiver, c.FlashLoan.Receiver)
	c.Redis.Addr = GetEnvWithDefault(EnvRedisAddr, c.Redis.Addr)
	c.Redis.Password = GetEnvWithDefault(EnvRedisPassword, c.Redis.Password)
	c.Postgres.DSN = GetEnvWithDefault(EnvDatabaseURL, c.Postgres.DSN)
	c.Execution.PrivateRelayURL = GetEnvWithDefault(EnvPrivateRelayURL, c.Execution.PrivateRelayURL)
	c.Execution.RelayAuthKey = GetEnvWithDefault(EnvRelayAuthKey, c.Execution.RelayAuthKey)

	apiKey := os.Getenv(EnvSubgraphAPIKey)
	for i := range c.Venues {
		v := &c.Venues[i]
		switch v.Kind {
		case KindConcentrated:
			v.Subgraph = GetEnvWithDefault(EnvConcentratedGraph, v.Subgraph)
		case KindWeighted:
			v.Subgraph = GetEnvWithDefault(EnvWeightedGraph, v.Subgraph)
		}
		if apiKey != "" && v.Subgraph != "" && v.APIKey == "" {
			v.APIKey = apiKey
		}
	}
}
