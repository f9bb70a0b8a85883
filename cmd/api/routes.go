package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"channel-gateway/internal/aiagent"
	"channel-gateway/internal/httpapi"
	"channel-gateway/internal/providerstore"
	"channel-gateway/internal/registry"
	"channel-gateway/internal/telephony"
	"channel-gateway/internal/webhooks"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
//
// Webhook URLs are workspace-scoped: the path segment identifies whose
// provider credentials verify the signature.
func registerRoutes(r *gin.Engine, reg *registry.Registry, providers *providerstore.Store, rdb *redis.Client, log *slog.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Agent platform reachability probe; separate from credential validity.
	// Workspace-scoped because the probe authenticates with the workspace's
	// stored config.
	r.GET("/healthz/agents/:workspace/:code", func(c *gin.Context) {
		code := aiagent.Code(c.Param("code"))
		adapter, err := reg.Agent(code)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}
		creds, err := providers.Credentials(c.Request.Context(), c.Param("workspace"), string(code))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
			return
		}
		if err := adapter.Initialize(aiagent.Config(creds)); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
			return
		}
		c.JSON(http.StatusOK, adapter.CheckHealth(c.Request.Context()))
	})

	dedup := webhooks.RedisDeduper{RDB: rdb}

	// The CRM's event consumers sit behind these sinks; at the gateway
	// boundary the normalized events are logged and acknowledged.
	telephonySink := func(ctx context.Context, event telephony.CallEvent) error {
		log.Info("call event",
			"type", event.Type,
			"provider_call_id", event.ProviderCallID,
			"direction", event.Direction,
		)
		return nil
	}
	agentSink := func(ctx context.Context, event aiagent.CallEndedEvent) error {
		log.Info("agent call ended",
			"provider_call_id", event.ProviderCallID,
			"end_reason", event.EndReason,
			"turns", len(event.Transcript),
		)
		return nil
	}

	th := webhooks.TelephonyHandler{
		Registry: reg,
		Secret:   webhookSecretResolver(providers),
		Dedup:    dedup,
		Sink:     telephonySink,
	}
	ah := webhooks.AgentHandler{
		Registry: reg,
		Config:   agentConfigResolver(providers),
		Dedup:    dedup,
		Sink:     agentSink,
	}

	wh := r.Group("/webhooks/:workspace")
	{
		wh.POST("/twilio/voice", th.Handle(telephony.CodeTwilio))
		wh.POST("/telnyx", th.Handle(telephony.CodeTelnyx))
		wh.POST("/vonage", th.Handle(telephony.CodeVonage))
		wh.POST("/agents/vapi", ah.Handle(aiagent.CodeVAPI))
		wh.POST("/agents/elevenlabs", ah.Handle(aiagent.CodeElevenLabs))
	}

	api := httpapi.Handlers{Providers: providers, Registry: reg}

	ws := r.Group("/workspaces/:workspace/providers")
	{
		ws.POST("", api.CreateProvider)
		ws.GET("", api.ListProviders)
		ws.POST("/:code/validate", api.ValidateProviderCredentials)
		ws.GET("/:code/numbers", api.ListProviderNumbers)
	}

	pr := r.Group("/providers/:id")
	{
		pr.PATCH("/credentials", api.UpdateProviderCredentials)
		pr.PATCH("/enabled", api.SetProviderEnabled)
		pr.DELETE("", api.DeleteProvider)
	}
}

// webhookSecretResolver picks the per-vendor verification secret out of the
// workspace's stored credentials.
func webhookSecretResolver(providers *providerstore.Store) webhooks.SecretResolver {
	return func(c *gin.Context, code telephony.Code) (string, error) {
		creds, err := providers.Credentials(c.Request.Context(), c.Param("workspace"), string(code))
		if err != nil {
			return "", err
		}
		var key string
		switch code {
		case telephony.CodeTwilio:
			key = "authToken"
		case telephony.CodeTelnyx:
			key = "webhookPublicKey"
		case telephony.CodeVonage:
			key = "signatureSecret"
		}
		secret := creds[key]
		if secret == "" {
			return "", fmt.Errorf("credential %q not configured for %s", key, code)
		}
		return secret, nil
	}
}

func agentConfigResolver(providers *providerstore.Store) webhooks.AgentConfigResolver {
	return func(c *gin.Context, code aiagent.Code) (aiagent.Config, error) {
		creds, err := providers.Credentials(c.Request.Context(), c.Param("workspace"), string(code))
		if err != nil {
			return nil, err
		}
		return aiagent.Config(creds), nil
	}
}
