package bplus

import (
	"fmt"
	"log/slog"
)

const (
	DefaultOrder = 4
	MinOrder     = 3
)

// Config controls the shape and limits of a BPlusTree.
type Config struct {
	// Order is the maximum number of children of an internal node. A node
	// holds at most Order-1 keys.
	Order int

	// AllowDuplicates stores repeated keys as separate leaf entries. When
	// false, Insert of an existing key fails with ErrAlreadyExists.
	AllowDuplicates bool

	// MaxNodes caps the number of live nodes. Zero means no cap.
	MaxNodes int

	Logger *slog.Logger
}

// DefaultConfig returns an order-4 tree that accepts duplicate keys.
func DefaultConfig() Config {
	return Config{
		Order:           DefaultOrder,
		AllowDuplicates: true,
	}
}

// Validate reports whether c describes a usable tree.
func (c Config) Validate() error {
	if c.Order < MinOrder {
		return fmt.Errorf("%w: order %d is below %d", ErrInvalidOrder, c.Order, MinOrder)
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("invalid config: MaxNodes %d is negative", c.MaxNodes)
	}
	return nil
}

// MaxKeys is the key capacity of a node.
func (c Config) MaxKeys() int { return c.Order - 1 }

// MinKeys is the fewest keys a non-root node may hold: ceil(Order/2) - 1.
func (c Config) MinKeys() int { return (c.Order+1)/2 - 1 }
