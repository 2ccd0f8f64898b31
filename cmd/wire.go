package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bnema/agent-chat-cli/internal/adapters/agent/sse"
	"github.com/bnema/agent-chat-cli/internal/adapters/logstore"
	mirroradapter "github.com/bnema/agent-chat-cli/internal/adapters/mirror"
	transcriptadapter "github.com/bnema/agent-chat-cli/internal/adapters/render/transcript"
	"github.com/bnema/agent-chat-cli/internal/application"
	"github.com/bnema/agent-chat-cli/internal/domain"
	"github.com/bnema/agent-chat-cli/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	sessionModeKey      = "session.mode"
	maxSessionsKey      = "session.max"
	retentionDaysKey    = "session.retention_days"
	agentURLKey         = "agent.url"
	requestTimeoutKey   = "agent.request_timeout"
	mirrorEndpointKey   = "mirror.endpoint"
	defaultAgentBaseURL = "http://127.0.0.1:8000"
)

type app struct {
	logger           *zap.Logger
	cfg              *viper.Viper
	store            *logstore.Store
	manager          *application.ConversationManager
	agent            ports.AgentClient
	requestTimeout   time.Duration
	retentionDays    int
	sessionsRenderer func([]domain.Session, transcriptadapter.RenderOptions) (string, error)
	reportRenderer   func(application.Statistics, application.Health, transcriptadapter.RenderOptions) (string, error)
	now              func() time.Time
}

func (a *app) wire(logger *zap.Logger) error {
	cfg := viper.New()
	cfg.SetDefault(sessionModeKey, string(application.SessionModeUnique))
	cfg.SetDefault(maxSessionsKey, application.DefaultMaxSessions)
	cfg.SetDefault(retentionDaysKey, application.DefaultRetentionDays)
	cfg.SetDefault(agentURLKey, envOrDefault("AC_AGENT_URL", defaultAgentBaseURL))
	cfg.SetDefault(requestTimeoutKey, application.DefaultRequestTimeout.String())
	cfg.SetDefault(mirrorEndpointKey, os.Getenv("AC_MIRROR_ENDPOINT"))

	store, err := logstore.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("wire log store: %w", err)
	}

	registry := application.NewSessionRegistry(store, ports.SystemClock{}, logger, application.RegistryConfig{
		Mode:        application.SessionMode(cfg.GetString(sessionModeKey)),
		MaxSessions: cfg.GetInt(maxSessionsKey),
	})

	var mirror ports.MirrorSink
	if endpoint := cfg.GetString(mirrorEndpointKey); endpoint != "" {
		mirror = &mirroradapter.Sink{Endpoint: endpoint, HTTPClient: http.DefaultClient}
	}

	requestTimeout := cfg.GetDuration(requestTimeoutKey)
	if requestTimeout <= 0 {
		requestTimeout = application.DefaultRequestTimeout
	}

	a.logger = logger
	a.cfg = cfg
	a.store = store
	a.manager = application.NewConversationManager(store, registry, mirror, ports.SystemClock{}, logger)
	a.agent = &sse.Client{
		BaseURL:    cfg.GetString(agentURLKey),
		HTTPClient: http.DefaultClient,
		Logger:     logger,
	}
	a.requestTimeout = requestTimeout
	a.retentionDays = cfg.GetInt(retentionDaysKey)
	a.sessionsRenderer = transcriptadapter.RenderSessions
	a.reportRenderer = transcriptadapter.RenderReport
	a.now = time.Now
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
