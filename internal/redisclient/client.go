package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/reserve_stock.lua
var reserveStockScript string

//go:embed scripts/release_stock.lua
var releaseStockScript string

// ErrUnknownProduct is returned when no counter exists for a product.
var ErrUnknownProduct = errors.New("stock counter not found")

type Client struct {
	rdb           *redis.Client
	reserveScript *redis.Script
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return newClient(rdb), nil
}

func newClient(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		reserveScript: redis.NewScript(reserveStockScript),
		releaseScript: redis.NewScript(releaseStockScript),
	}
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func stockKey(productID int64) string {
	return fmt.Sprintf("inventory:%d", productID)
}

// ReserveStock atomically takes quantity from the product counter.
// It reports false when the counter holds less than quantity and
// ErrUnknownProduct when the counter has never been set.
func (c *Client) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	result, err := c.reserveScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Int64()
	if err != nil {
		return false, fmt.Errorf("reserve stock script failed: %w", err)
	}

	switch result {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrUnknownProduct
	}
}

// ReleaseStock returns quantity to an existing counter.
func (c *Client) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	if err := c.releaseScript.Run(ctx, c.rdb, []string{stockKey(productID)}, quantity).Err(); err != nil {
		return fmt.Errorf("release stock script failed: %w", err)
	}
	return nil
}

// SetStock overwrites the counter with the authoritative database value.
func (c *Client) SetStock(ctx context.Context, productID int64, stock int) error {
	return c.rdb.Set(ctx, stockKey(productID), stock, 0).Err()
}

func (c *Client) DeleteStock(ctx context.Context, productID int64) error {
	return c.rdb.Del(ctx, stockKey(productID)).Err()
}

func (c *Client) GetStock(ctx context.Context, productID int64) (int, error) {
	val, err := c.rdb.Get(ctx, stockKey(productID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrUnknownProduct
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(val)
}
