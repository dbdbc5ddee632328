// SPDX-FileCopyrightText: Copyright 2026 Jotter HQ
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the durable key-value store backing the photo
// connection flow: CSRF state and token records are persisted here, keyed
// per subject. Backends are interchangeable; tests use the in-memory store,
// deployments use Redis or a local bbolt file.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Store is a durable key-value store. Individual Set and Delete calls are
// atomic in every backend; no multi-key transaction is provided or required.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, overwriting any previous value.
	Set(ctx context.Context, key string, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// Backend names accepted by the factory.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendBolt   = "bolt"
)

// Config selects and configures a storage backend.
type Config struct {
	// Backend is one of BackendMemory, BackendRedis, BackendBolt.
	Backend string

	// Redis connection settings, used when Backend is BackendRedis.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// BoltPath is the database file path, used when Backend is BackendBolt.
	BoltPath string
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case BackendBolt:
		return NewBoltStore(cfg.BoltPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
