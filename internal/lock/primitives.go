package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// acquireOn performs the create-if-absent-with-expiry step on a single node.
// This is a single SETNX-with-TTL command, so it is atomic by construction;
// no read-then-write round trip is involved.
func acquireOn(ctx context.Context, client redis.Cmdable, name string, token Token, ttl time.Duration) error {
	ok, err := client.SetNX(ctx, name, string(token), ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return ErrBusy
	}
	return nil
}

// releaseOn performs the compare-and-delete release on a single node.
func releaseOn(ctx context.Context, client redis.Cmdable, name string, token Token) error {
	res, err := releaseScript.Run(ctx, client, []string{name}, string(token)).Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	if res != 1 {
		return ErrNotHeld
	}
	return nil
}

// extendOn performs the compare-and-refresh extend on a single node.
func extendOn(ctx context.Context, client redis.Cmdable, name string, token Token, newTTL time.Duration) error {
	res, err := extendScript.Run(ctx, client, []string{name}, string(token), newTTL.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("extend %s: %w", name, err)
	}
	if res != 1 {
		return ErrNotHeld
	}
	return nil
}
