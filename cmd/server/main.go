package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"secret-room/internal/api"
	"secret-room/internal/auth"
	"secret-room/internal/chat"
	"secret-room/internal/cipher"
	"secret-room/internal/config"
	"secret-room/internal/db"
	"secret-room/internal/invitation"
	"secret-room/internal/membership"
	"secret-room/internal/message"
	myMiddleware "secret-room/internal/middleware"
	"secret-room/internal/presence"
	"secret-room/internal/room"

	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type stores struct {
	rooms       room.Store
	members     membership.Store
	invitations invitation.Store
	messages    message.Store
	close       func() error
}

func openStores(ctx context.Context, cfg *config.Config, clk clock.Clock) (*stores, error) {
	if cfg.Storage == config.StorageMemory {
		members := membership.NewMemoryStore(clk)
		logrus.Warn("⚠️ Using in-memory storage, rooms will not survive a restart")
		return &stores{
			rooms:       room.NewMemoryStore(),
			members:     members,
			invitations: invitation.NewMemoryStore(members),
			messages:    message.NewMemoryStore(),
			close:       func() error { return nil },
		}, nil
	}

	database, err := db.NewDatabase(cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	logrus.Info("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	logrus.Info("✅ Database Schema Initialized")

	return &stores{
		rooms:       room.NewRepository(database.Conn),
		members:     membership.NewRepository(database.Conn, clk),
		invitations: invitation.NewRepository(database.Conn),
		messages:    message.NewRepository(database.Conn),
		close:       database.Close,
	}, nil
}

func openFanout(ctx context.Context, cfg *config.Config) (chat.Fanout, func() error, error) {
	if cfg.RedisAddr == "" {
		logrus.Info("No REDIS_ADDR, room broadcasts stay in process")
		return chat.NewLocalFanout(), func() error { return nil }, nil
	}
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisClient.Close()
		return nil, nil, err
	}
	logrus.Info("✅ Connected to Redis")
	return chat.NewRedisFanout(redisClient), redisClient.Close, nil
}

func main() {
	// 1. Config
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("❌ Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	clk := clock.New()

	// 2. Storage & fan-out (Platform Layer)
	st, err := openStores(ctx, cfg, clk)
	if err != nil {
		logrus.Fatalf("❌ Failed to open storage: %v", err)
	}
	defer st.close()

	fanout, closeFanout, err := openFanout(ctx, cfg)
	if err != nil {
		logrus.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	defer closeFanout()

	keys, err := cipher.NewKeyCache(cfg.KeyCacheSize)
	if err != nil {
		logrus.Fatalf("❌ Failed to create key cache: %v", err)
	}

	// 3. Core services
	registry := room.NewRegistry(st.rooms, st.members, clk,
		room.CascadeStep{Name: "messages", Target: st.messages},
		room.CascadeStep{Name: "invitations", Target: st.invitations},
	)
	tokens := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	messages := message.NewService(st.messages, registry, keys, clk)
	tracker := presence.NewTracker(st.members)
	invitations := invitation.NewManager(st.invitations, registry, st.members, tokens, clk)

	// 4. Realtime gateway
	hub := chat.NewHub(fanout)
	gateway := chat.NewGateway(hub, registry, st.members, messages, tracker, rate.Limit(cfg.EventRate), cfg.EventBurst)

	registry.OnDelete(gateway.EvictRoom)
	registry.OnDelete(func(_ context.Context, roomID string) { keys.Forget(roomID) })

	// 5. Routes
	handler := &api.Handler{
		Rooms:       registry,
		Invitations: invitations,
		Members:     st.members,
		Presence:    tracker,
		Messages:    messages,
		Tokens:      tokens,
	}
	router := api.NewRouter(handler, myMiddleware.NewAuthMiddleware(tokens), gateway.ServeWs)
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		room.NewReaper(registry, cfg.ReapInterval).Run(gctx)
		return nil
	})
	g.Go(func() error {
		logrus.Infof("🚀 Server starting on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logrus.Errorf("❌ Server stopped: %v", err)
		return
	}
	logrus.Info("👋 Server stopped")
}
