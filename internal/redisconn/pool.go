// Package redisconn manages connections to the set of independent Redis
// coordination nodes that back the locking and atomic-stock layers. Each
// node is connected to independently; there is no replication between them
// by design.
package redisconn

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Node pairs a coordination node's address with its client connection.
type Node struct {
	Addr   string
	Client *redis.Client
}

// Pool holds one connection per configured coordination node. Connections
// are pooled internally by go-redis with a bounded maximum and idle reaping.
type Pool struct {
	Nodes []Node
}

// Options configures the per-node Redis client pool.
type Options struct {
	Password    string
	DB          int
	DialTimeout time.Duration
	// PoolSize bounds the maximum number of connections per node; 0 uses the
	// go-redis default (10 * GOMAXPROCS).
	PoolSize int
	// MinIdleConns keeps warm connections ready, reaping the rest when idle.
	MinIdleConns int
}

// Open dials one client per address in addrs. Dialing is lazy in go-redis
// (no network I/O here); callers should Ping each node to verify
// reachability before relying on it.
func Open(addrs []string, opts Options) (*Pool, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("redisconn: at least one coordination node address is required")
	}

	nodes := make([]Node, 0, len(addrs))
	for _, addr := range addrs {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			Password:     opts.Password,
			DB:           opts.DB,
			DialTimeout:  opts.DialTimeout,
			PoolSize:     opts.PoolSize,
			MinIdleConns: opts.MinIdleConns,
		})
		nodes = append(nodes, Node{Addr: addr, Client: client})
	}
	return &Pool{Nodes: nodes}, nil
}

// Ping pings every node and returns the list of unreachable addresses, if any.
func (p *Pool) Ping(ctx context.Context) (unreachable []string) {
	for _, n := range p.Nodes {
		if err := n.Client.Ping(ctx).Err(); err != nil {
			unreachable = append(unreachable, n.Addr)
		}
	}
	return unreachable
}

// Close closes every node connection, returning the first error encountered.
func (p *Pool) Close() error {
	var firstErr error
	for _, n := range p.Nodes {
		if err := n.Client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
