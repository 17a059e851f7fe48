package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/soyeahso/shopchat/internal/agent"
	"github.com/soyeahso/shopchat/internal/auth"
	"github.com/soyeahso/shopchat/internal/config"
	"github.com/soyeahso/shopchat/internal/hooks"
	"github.com/soyeahso/shopchat/internal/llm"
	"github.com/soyeahso/shopchat/internal/store"
	"github.com/soyeahso/shopchat/internal/toolgw"
)

// services is everything a chat turn needs, wired from config.
type services struct {
	db       *store.DB
	rdb      *redis.Client
	sql      *store.SQLStore
	messages agent.MessageStore
	auth     *auth.Service // nil when customer authorization is not configured
	tools    *toolgw.Gateway
	hooks    *hooks.Manager
	chat     *agent.Chat
}

// openDB opens the configured database, running migrations.
func openDB(cfg config.Config) (*store.DB, error) {
	target := cfg.Store.DSN
	if cfg.Store.Driver != store.DriverPostgres {
		target = cfg.Store.Path
		if target == "" {
			if err := paths.EnsureDirs(); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
			target = paths.DatabasePath()
		}
	}

	db, err := store.Open(cfg.Store.Driver, target, log)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func openServices(ctx context.Context, cfg config.Config) (*services, error) {
	client, err := llm.NewFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	prompts, err := agent.LoadPrompts(cfg.Chat.Prompts, cfg.Chat.DefaultPromptType)
	if err != nil {
		return nil, err
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	svc := &services{db: db, sql: store.NewSQLStore(db)}
	svc.messages = svc.sql

	if cfg.Cache.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.Cache.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, serving history from the database only")
		} else {
			svc.rdb = rdb
			svc.messages = store.NewCachedStore(svc.sql, rdb, cfg.Cache.TTL, log)
			log.Info().Dur("ttl", cfg.Cache.TTL).Msg("history cache enabled")
		}
	}

	svc.hooks = hooks.NewManager(log)
	hooks.RegisterAuditLog(svc.hooks, log)

	toolOpts := []toolgw.Option{
		toolgw.WithTokens(svc.sql),
		toolgw.WithAccountURLs(svc.sql),
	}
	if cfg.Auth.ClientID != "" {
		svc.auth = auth.New(cfg.Auth, svc.sql, log)
		toolOpts = append(toolOpts, toolgw.WithAuthorizer(svc.auth))
	} else {
		log.Warn().Msg("auth.clientId not set, customer tools will not be able to request authorization")
	}
	svc.tools = toolgw.New(cfg.Tools, log, toolOpts...)

	failover := agent.NewFailoverClient(client, cfg.LLM.Model, cfg.LLM.Fallbacks, log)
	engine := agent.NewEngine(agent.EngineConfig{
		Model:             cfg.LLM.Model,
		MaxTokens:         cfg.LLM.MaxTokens,
		MaxToolRounds:     cfg.Chat.MaxToolRounds,
		MaxProducts:       cfg.Chat.MaxProductsToDisplay,
		ProductSearchTool: cfg.Chat.ProductSearchTool,
	}, failover, svc.messages, prompts, log, agent.WithEngineHooks(svc.hooks))
	svc.chat = agent.NewChat(engine, svc.messages, agent.GatewayConnector(svc.tools), log, agent.WithChatHooks(svc.hooks))

	log.Info().
		Str("provider", client.Name()).
		Str("model", cfg.LLM.Model).
		Strs("fallbacks", cfg.LLM.Fallbacks).
		Str("store", db.Driver()).
		Strs("prompts", prompts.Types()).
		Msg("chat services ready")
	return svc, nil
}

// Close releases the database and cache connections.
func (s *services) Close() {
	s.hooks.Wait()
	if s.rdb != nil {
		s.rdb.Close()
	}
	if err := s.db.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}
