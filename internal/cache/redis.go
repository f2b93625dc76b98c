package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client tracks user presence in Redis. All methods are nil-safe so the
// server can run without a cache configured.
type Client struct {
	cli *redis.Client
}

// presence:<userID> -> json {status,last_seen}
type presenceDoc struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func New(addr, password string, db int) (*Client, error) {
	r := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Client{cli: r}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.cli.Close()
}

func (c *Client) SetPresence(ctx context.Context, userID string, online bool) error {
	if c == nil {
		return nil
	}
	status := "offline"
	if online {
		status = "online"
	}
	doc, _ := json.Marshal(presenceDoc{Status: status, LastSeen: time.Now().Unix()})
	return c.cli.Set(ctx, "presence:"+userID, doc, 0).Err()
}

func (c *Client) GetPresence(ctx context.Context, userID string) (bool, error) {
	if c == nil {
		return false, nil
	}
	b, err := c.cli.Get(ctx, "presence:"+userID).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	var doc presenceDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return false, err
	}
	return doc.Status == "online", nil
}
