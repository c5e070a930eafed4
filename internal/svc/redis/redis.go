package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

type Instance interface {
	RawClient() redis.UniversalClient
	ComposeKey(parts ...string) Key
	Ping(ctx context.Context) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func())
}

type Key string

func (k Key) String() string {
	return string(k)
}

type SetupOptions struct {
	Username   string
	Password   string
	Database   int
	Sentinel   bool
	MasterName string
	Addresses  []string
}

type redisInst struct {
	client redis.UniversalClient
	prefix string
}

func Setup(ctx context.Context, opt SetupOptions) (Instance, error) {
	if len(opt.Addresses) == 0 {
		return nil, fmt.Errorf("redis: no addresses provided")
	}

	var client redis.UniversalClient
	if opt.Sentinel {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opt.MasterName,
			SentinelAddrs: opt.Addresses,
			Username:      opt.Username,
			Password:      opt.Password,
			DB:            opt.Database,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     opt.Addresses[0],
			Username: opt.Username,
			Password: opt.Password,
			DB:       opt.Database,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &redisInst{
		client: client,
		prefix: "gateway",
	}, nil
}

func (r *redisInst) RawClient() redis.UniversalClient {
	return r.client
}

func (r *redisInst) ComposeKey(parts ...string) Key {
	return Key(r.prefix + ":" + strings.Join(parts, ":"))
}

func (r *redisInst) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Subscribe opens a pub/sub subscription on the given channel. The returned
// cancel func closes the subscription and its delivery channel.
func (r *redisInst) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	sub := r.client.Subscribe(ctx, channel)
	out := make(chan string, 16)

	go func() {
		defer close(out)

		for msg := range sub.Channel() {
			out <- msg.Payload
		}
	}()

	return out, func() {
		_ = sub.Close()
	}
}
