package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"lockd-api/api"
	"lockd-api/ledger"
	"lockd-api/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.New()
	logger.SetLevel(log.GetLevel())

	rc := buildRedisClient()
	store := buildStore(logger, rc)

	accounts := storage.NewAccounts(store)
	var reader api.Reader = accounts
	var evictor api.Evictor
	if rc != nil {
		cacheTTL := 5 * time.Minute
		if v := os.Getenv("CACHE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d < 0 {
				logger.Fatalf("invalid CACHE_TTL: %v", err)
			}
			cacheTTL = d
		}
		cache := storage.NewCache(accounts, rc, cacheTTL)
		reader = cache
		evictor = cache
	}

	var deduper api.Deduper
	if rc != nil {
		ttl := 24 * time.Hour
		if v := os.Getenv("DEDUPER_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				logger.Fatalf("invalid DEDUPER_TTL: %v", err)
			}
			ttl = d
		}
		deduper = api.NewRedisDeduper(rc, ttl)
	}

	var reminders *api.ReminderDispatcher
	var sink ledger.ReminderSink
	if queueName := os.Getenv("REMINDER_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			logger.Fatal("REMINDER_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		queue, err := storage.NewReminderQueue(connStr, queueName)
		if err != nil {
			logger.Fatalf("reminder queue: %v", err)
		}
		reminders, err = api.NewReminderDispatcher(queue, logger)
		if err != nil {
			logger.Fatalf("reminder dispatcher: %v", err)
		}
		sink = reminders
	}

	processor := ledger.New(store, nil, logger, sink)
	auth := buildAuth(logger)

	e := echo.New()
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(api.GzipRequestMiddleware())

	api.Register(e, api.Handlers{
		Reader:    reader,
		Processor: processor,
		Auth:      auth,
		Deduper:   deduper,
		Evictor:   evictor,
		Reminders: reminders,
		Logger:    logger,
	})

	listenAddr := ":8080"
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

func buildStore(logger *log.Logger, rc *redis.Client) storage.Store {
	backend := strings.ToLower(os.Getenv("STORAGE_BACKEND"))
	switch backend {
	case "", "memory":
		logger.Warn("using in-memory account store; state is lost on restart")
		return storage.NewMemoryStore()
	case "redis":
		if rc == nil {
			logger.Fatal("STORAGE_BACKEND=redis requires REDIS_CONNECTION_STRING")
		}
		return storage.NewRedisStore(rc)
	case "aztables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		table := os.Getenv("ACCOUNTS_TABLE")
		if connStr == "" || table == "" {
			logger.Fatal("STORAGE_BACKEND=aztables requires STORAGE_CONNECTION_STRING and ACCOUNTS_TABLE")
		}
		store, err := storage.NewTableStore(connStr, table)
		if err != nil {
			logger.Fatalf("storage: %v", err)
		}
		return store
	default:
		logger.Fatalf("unknown STORAGE_BACKEND %q", backend)
		return nil
	}
}

func buildRedisClient() *redis.Client {
	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisConn)
	if err != nil {
		// Azure-style connection strings: host:port,password=...,ssl=true
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
	return redis.NewClient(redisOpts)
}

func buildAuth(logger *log.Logger) *api.Auth {
	if os.Getenv("AUTH0_TEST_MODE") == "1" || os.Getenv("LOCAL_AUTH_MODE") != "" {
		return api.NewAuth(nil, "", "")
	}
	jwtAudience := os.Getenv("AUTH0_AUDIENCE")
	domain := os.Getenv("AUTH0_DOMAIN")
	if jwtAudience == "" || domain == "" {
		logger.Fatal("missing Auth0 config")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		logger.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, jwtAudience, "https://"+domain+"/")
}
