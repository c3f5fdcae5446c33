package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/KirkDiggler/pinball-core/internal/forwarding"
	"github.com/KirkDiggler/pinball-core/internal/modes"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Set up Redis
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}
	channel := os.Getenv("REDIS_CHANNEL")
	if channel == "" {
		channel = forwarding.DefaultRedisChannel
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	client := redis.NewClient(opts)
	defer client.Close()

	// Test connection
	if _, pingErr := client.Ping(ctx).Result(); pingErr != nil {
		log.Fatalf("Failed to connect to Redis: %v", pingErr)
	}

	// Show the last known stack before following the channel
	if data, getErr := client.Get(ctx, channel+":active_modes").Result(); getErr == nil {
		var stack []modes.ActiveEntry
		if jsonErr := json.Unmarshal([]byte(data), &stack); jsonErr == nil {
			fmt.Printf("Active modes: %s\n", formatStack(stack))
		}
	} else if getErr != redis.Nil {
		log.Fatalf("Failed to read active modes: %v", getErr)
	}

	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	fmt.Printf("Watching %s. Press CTRL-C to exit.\n", channel)
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatalf("Failed to receive: %v", err)
		}

		var m forwarding.Message
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			fmt.Printf("  ?? %s\n", msg.Payload)
			continue
		}

		switch m.Type {
		case forwarding.MessageTypeActiveModes:
			fmt.Printf("%s  modes  %s\n", m.Time.Format("15:04:05.000"), formatStack(m.Modes))
		default:
			fmt.Printf("%s  event  %s %v\n", m.Time.Format("15:04:05.000"), m.Event, m.Params)
		}
	}
}

func formatStack(stack []modes.ActiveEntry) string {
	if len(stack) == 0 {
		return "none"
	}
	parts := make([]string, len(stack))
	for i, e := range stack {
		parts[i] = fmt.Sprintf("%s(%d)", e.Name, e.Priority)
	}
	return strings.Join(parts, " ")
}
