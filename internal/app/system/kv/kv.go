// Package kv defines the string key/value storage tiers used for credential
// blobs and local cache records, and the prioritized Tiers list that reads
// from the first tier that can serve a key and writes to every tier.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("kv: key not found")

// Backend is one storage tier.
type Backend interface {
	// Name identifies the tier in logs and metrics.
	Name() string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Prefixed namespaces every key of b with prefix.
func Prefixed(b Backend, prefix string) Backend {
	return prefixed{b: b, prefix: prefix}
}

type prefixed struct {
	b      Backend
	prefix string
}

func (p prefixed) Name() string { return p.b.Name() }

func (p prefixed) Get(ctx context.Context, key string) (string, error) {
	return p.b.Get(ctx, p.prefix+key)
}

func (p prefixed) Set(ctx context.Context, key, value string) error {
	return p.b.Set(ctx, p.prefix+key, value)
}

func (p prefixed) Delete(ctx context.Context, key string) error {
	return p.b.Delete(ctx, p.prefix+key)
}
