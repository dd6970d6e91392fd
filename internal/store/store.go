// Package store wraps the shared signaling key-path store. Paths are
// slash-separated (e.g. "consultRequests/<doctorId>/<requestId>",
// "rooms/<roomId>/offer"); values are JSON. The store carries no business
// logic, it only moves bytes and change notifications.
package store

import "context"

// Subscription is a disposable handle for a store watch. Close is
// idempotent and synchronously stops callback delivery; holding
// subscriptions and closing them on teardown is how components avoid
// leaking watches.
type Subscription interface {
	Close()
}

// Store is the shared signaling store contract. Any hierarchical pub/sub
// KV store satisfies it.
type Store interface {
	// Write marshals value as JSON and stores it at path, notifying
	// subscribers of path and of the parent's child watches.
	Write(ctx context.Context, path string, value interface{}) error

	// Read unmarshals the value at path into out. Returns false if the
	// path is absent.
	Read(ctx context.Context, path string, out interface{}) (bool, error)

	// Delete removes path and everything beneath it.
	Delete(ctx context.Context, path string) error

	// Subscribe watches a single path. fn fires once with the current
	// value (nil if absent) and again on every write or delete at the
	// path. Delivery stops when the subscription is closed.
	Subscribe(ctx context.Context, path string, fn func(data []byte)) (Subscription, error)

	// SubscribeChildren watches the direct children of path. fn fires for
	// each existing child in key order, then for every newly written
	// child. Matches the "child added" semantics candidate queues need.
	SubscribeChildren(ctx context.Context, path string, fn func(key string, data []byte)) (Subscription, error)
}
