package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/KirkDiggler/pinball-core/internal/config"
	"github.com/KirkDiggler/pinball-core/internal/delays"
	"github.com/KirkDiggler/pinball-core/internal/events"
	"github.com/KirkDiggler/pinball-core/internal/forwarding"
	"github.com/KirkDiggler/pinball-core/internal/machine"
	"github.com/KirkDiggler/pinball-core/internal/modes"
	"github.com/KirkDiggler/pinball-core/internal/players"
	"github.com/KirkDiggler/pinball-core/internal/switches"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file")
	}

	if err := run(); err != nil {
		log.Printf("Fatal: %v", err)
		os.Exit(1)
	}
}

// run wires the machine and blocks until it stops. Deferred cleanup runs
// before main exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	bus := events.NewBus(&events.BusConfig{Debug: cfg.Machine.Debug})
	scheduler := delays.NewScheduler(&delays.SchedulerConfig{Bus: bus})

	switchController, err := switches.NewController(&switches.ControllerConfig{Bus: bus})
	if err != nil {
		return fmt.Errorf("failed to create switch controller: %w", err)
	}

	modeController, err := modes.NewController(&modes.ControllerConfig{
		Bus:       bus,
		Scheduler: scheduler,
		Switches:  switchController,
		Debug:     cfg.Machine.Debug,
	})
	if err != nil {
		return fmt.Errorf("failed to create mode controller: %w", err)
	}

	if _, err := players.NewEventPlayer(&players.EventPlayerConfig{
		Bus:        bus,
		Controller: modeController,
	}); err != nil {
		return fmt.Errorf("failed to create event player: %w", err)
	}

	modeConfigs, err := config.LoadModes(cfg.Machine.ModesPath)
	if err != nil {
		return fmt.Errorf("failed to load modes: %w", err)
	}
	for _, modeCfg := range modeConfigs {
		if _, err := modeController.CreateMode(modeCfg, modes.BaseBehavior{}); err != nil {
			return fmt.Errorf("failed to create mode %s: %w", modeCfg.Mode.Name, err)
		}
	}

	loop, err := machine.NewLoop(&machine.LoopConfig{
		Bus:            bus,
		TickHz:         cfg.Machine.TickHz,
		StallWarnAfter: cfg.Machine.StallWarnAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to create machine loop: %w", err)
	}

	var sinks []forwarding.Sink

	// Keep Redis client for cleanup
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = connectRedis(cfg.Redis.URL)
		if err != nil {
			log.Printf("Failed to connect to Redis: %v", err)
			log.Println("Forwarding to Redis disabled")
		} else {
			defer func() {
				if closeErr := redisClient.Close(); closeErr != nil {
					log.Printf("Failed to close Redis connection: %v", closeErr)
				}
			}()

			sink, sinkErr := forwarding.NewRedisSink(&forwarding.RedisSinkConfig{
				Client:  redisClient,
				Channel: cfg.Redis.Channel,
			})
			if sinkErr != nil {
				return fmt.Errorf("failed to create Redis sink: %w", sinkErr)
			}
			sinks = append(sinks, sink)
			log.Printf("Forwarding to Redis channel %s", cfg.Redis.Channel)
		}
	}

	if cfg.Discord.Token != "" {
		dg, dgErr := discordgo.New("Bot " + cfg.Discord.Token)
		if dgErr != nil {
			return fmt.Errorf("failed to create Discord session: %w", dgErr)
		}
		sink, sinkErr := forwarding.NewDiscordSink(&forwarding.DiscordSinkConfig{
			Sender:    dg,
			ChannelID: cfg.Discord.ChannelID,
		})
		if sinkErr != nil {
			return fmt.Errorf("failed to create Discord sink: %w", sinkErr)
		}
		sinks = append(sinks, sink)
		log.Printf("Announcing mode changes to Discord channel %s", cfg.Discord.ChannelID)
	}

	var forwarder *forwarding.Forwarder
	if len(sinks) > 0 {
		forwarder, err = forwarding.NewForwarder(&forwarding.ForwarderConfig{
			Bus:        bus,
			Sinks:      sinks,
			Events:     cfg.Forward.Events,
			MonitorAll: cfg.Forward.MonitorAll,
			BufferSize: cfg.Forward.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("failed to create forwarder: %w", err)
		}
	}

	if err := loop.Enqueue(func() error {
		return bus.Post(events.ResetComplete, nil, nil)
	}); err != nil {
		return fmt.Errorf("failed to queue reset: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	if forwarder != nil {
		g.Go(func() error {
			return forwarder.Run(gctx)
		})
	}

	fmt.Printf("Machine is running with %d modes. Press CTRL-C to exit.\n", len(modeConfigs))

	if err := g.Wait(); err != nil {
		return fmt.Errorf("machine stopped: %w", err)
	}

	fmt.Println("Shutting down...")
	return nil
}

func connectRedis(url string) (*redis.Client, error) {
	log.Printf("Connecting to Redis at: %s", url)

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Println("Successfully connected to Redis")
	return client, nil
}
