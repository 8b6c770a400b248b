package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"teamboard-api/api"
	"teamboard-api/feed"
	"teamboard-api/notify"
	"teamboard-api/storage"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return d
}

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing storage config")
	}
	tables := storage.Tables{
		Users:         envOr("USERS_TABLE", "users"),
		Teams:         envOr("TEAMS_TABLE", "teams"),
		TeamMembers:   envOr("TEAM_MEMBERS_TABLE", "teammembers"),
		Boards:        envOr("BOARDS_TABLE", "boards"),
		BoardColumns:  envOr("BOARD_COLUMNS_TABLE", "boardcolumns"),
		Tasks:         envOr("TASKS_TABLE", "tasks"),
		ChatMessages:  envOr("CHAT_MESSAGES_TABLE", "chatmessages"),
		Notifications: envOr("NOTIFICATIONS_TABLE", "notifications"),
	}
	notifyQueueName := envOr("NOTIFICATIONS_QUEUE", "notifications")
	store, err := storage.New(connStr, tables, notifyQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		parts := strings.Split(redisConn, ",")
		redisOpts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				redisOpts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					redisOpts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	rc := redis.NewClient(redisOpts)

	logger := log.New()

	cache := storage.NewCache(store, rc, envDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute))
	publisher := feed.NewPublisher(rc, logger)
	subscriber := feed.NewSubscriber(rc, logger)

	var deadlines api.DeadlineFilter
	if os.Getenv("DEADLINE_DEDUP") == "1" {
		deadlines = notify.NewDeduper(rc, envDuration("DEADLINE_DEDUP_TTL", 24*time.Hour))
	}

	var auth *api.Auth
	if strings.EqualFold(os.Getenv("LOCAL_AUTH_MODE"), "hs256") {
		auth = api.NewAuth(nil, os.Getenv("AUTH_AUDIENCE"), os.Getenv("AUTH_ISSUER"))
	} else {
		jwtAudience := os.Getenv("AUTH0_AUDIENCE")
		domain := os.Getenv("AUTH0_DOMAIN")
		if jwtAudience == "" || domain == "" {
			log.Fatal("missing Auth0 config")
		}
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
	}
	var issuer api.TokenIssuer
	if auth.LocalMode {
		issuer = auth
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	worker := notify.NewWorker(store, store, publisher, envDuration("NOTIFY_POLL_INTERVAL", time.Second), logger)
	go worker.Run(workerCtx)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("teamboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	api.Register(e, store, cache, auth, issuer, publisher, subscriber, deadlines, logger)

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("TEAMBOARD_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}
