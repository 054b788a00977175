// Package redis connects the go-redis client shared by the session store,
// the auth event broker and confirmation tokens.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const pingTimeout = 2 * time.Second

type Client struct {
	*goredis.Client
}

// Options builds client options from addr, which is either host:port or a
// redis:// or rediss:// URL. An explicit password overrides one in the URL.
func Options(addr, password string) (*goredis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &goredis.Options{Addr: addr, Password: password}, nil
	}

	opts, err := goredis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("redis: parse %q: %w", addr, err)
	}
	if password != "" {
		opts.Password = password
	}
	return opts, nil
}

// New connects and fails unless the server answers a PING within
// pingTimeout.
func New(ctx context.Context, addr, password string) (*Client, error) {
	opts, err := Options(addr, password)
	if err != nil {
		return nil, err
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	return &Client{Client: client}, nil
}
