package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultSweepInterval     = 30 * time.Second
	DefaultTypingTimeout     = 3 * time.Second
)

type Config struct {
	DatabaseDSN       string
	ServerAddr        string
	SigningKey        []byte
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	SweepInterval     time.Duration
	TypingTimeout     time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		DatabaseDSN:       databaseDSN,
		ServerAddr:        serverAddr,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		HeartbeatInterval: DefaultHeartbeatInterval,
		SweepInterval:     DefaultSweepInterval,
		TypingTimeout:     DefaultTypingTimeout,
	}, nil
}
