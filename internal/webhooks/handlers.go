package webhooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"channel-gateway/internal/aiagent"
	"channel-gateway/internal/registry"
	"channel-gateway/internal/telephony"
	"channel-gateway/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers convert verified vendor webhooks into normalized events and hand
// them to the injected sinks. The CRM's event consumers are external
// collaborators; this package only gates, parses and dedupes.
//
// Order is fixed: signature verification first, then parsing, then dedup,
// then the sink. Nothing downstream runs on an unverified request.

// TelephonySink consumes one normalized call event.
type TelephonySink func(ctx context.Context, event telephony.CallEvent) error

// AgentSink consumes one normalized agent call-end report.
type AgentSink func(ctx context.Context, event aiagent.CallEndedEvent) error

// SecretResolver returns the webhook verification secret for a vendor
// (Twilio auth token, Telnyx public key, Vonage signature secret). Usually
// backed by the provider store.
type SecretResolver func(c *gin.Context, code telephony.Code) (string, error)

// Deduper suppresses vendor webhook redeliveries.
type Deduper interface {
	Once(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

const dedupTTL = 24 * time.Hour

type TelephonyHandler struct {
	Registry *registry.Registry
	Secret   SecretResolver
	Dedup    Deduper
	Sink     TelephonySink

	// InboundFlow, when set, decides the TwiML answer for inbound Twilio
	// calls (forward to a number or take voicemail).
	InboundFlow func(event telephony.CallEvent) telephony.TwiMLFlow

	Now func() time.Time
}

// Handle returns the gin handler for one telephony vendor's webhook endpoint.
func (h TelephonyHandler) Handle(code telephony.Code) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		adapter, err := h.Registry.Telephony(code)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		secret, err := h.Secret(c, code)
		if err != nil {
			log.Warn("webhook secret resolution failed", "provider", code, "err", err)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
			return
		}

		req := telephony.WebhookRequest{
			URL:    requestURL(c.Request),
			Header: c.Request.Header,
			Body:   body,
		}
		if !adapter.ValidateWebhook(req, secret) {
			log.Warn("webhook signature rejected", "provider", code)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}

		event := adapter.ParseWebhook(req)
		if event == nil {
			// Unmappable vendor status; acknowledge so the vendor stops retrying.
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = h.now()
		}

		key := "webhook:" + string(code) + ":" + event.ProviderCallID + ":" + string(event.Type)
		if h.Dedup != nil {
			first, err := h.Dedup.Once(c.Request.Context(), key, dedupTTL)
			if err != nil {
				// Dedup is best-effort; a redis outage must not drop events.
				log.Warn("webhook dedup unavailable", "err", err)
			} else if !first {
				c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
				return
			}
		}

		if err := h.Sink(c.Request.Context(), *event); err != nil {
			log.Error("webhook sink failed", "provider", code, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
			return
		}

		// Inbound Twilio voice calls expect an instruction document back.
		if code == telephony.CodeTwilio && h.InboundFlow != nil &&
			event.Direction == telephony.DirectionInbound && event.Type == telephony.EventRinging {
			twiml, err := telephony.RenderTwiML(h.InboundFlow(*event))
			if err != nil {
				log.Error("twiml render failed", "err", err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
				return
			}
			c.Header("Content-Type", "application/xml")
			c.String(http.StatusOK, twiml)
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h TelephonyHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// AgentConfigResolver returns the platform config for an agent adapter,
// usually decrypted from the provider store for the request's workspace.
type AgentConfigResolver func(c *gin.Context, code aiagent.Code) (aiagent.Config, error)

type AgentHandler struct {
	Registry *registry.Registry
	Config   AgentConfigResolver
	Dedup    Deduper
	Sink     AgentSink
}

// Handle returns the gin handler for one agent platform's webhook endpoint.
// The registry hands out a fresh adapter per request; it is initialized with
// the resolved config so verification uses the requesting workspace's secret
// and concurrent requests from different workspaces never share state.
func (h AgentHandler) Handle(code aiagent.Code) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		adapter, err := h.Registry.Agent(code)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
			return
		}

		cfg, err := h.Config(c, code)
		if err != nil {
			log.Warn("agent config resolution failed", "provider", code, "err", err)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
			return
		}
		if err := adapter.Initialize(cfg); err != nil {
			log.Warn("agent adapter init failed", "provider", code, "err", err)
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not configured"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		req := aiagent.WebhookRequest{Header: c.Request.Header, Body: body}
		if !adapter.ValidateWebhook(req) {
			log.Warn("agent webhook signature rejected", "provider", code)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}

		event := adapter.ParseWebhook(req)
		if event == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})
			return
		}

		key := "webhook:" + string(code) + ":" + event.ProviderCallID
		if h.Dedup != nil {
			first, err := h.Dedup.Once(c.Request.Context(), key, dedupTTL)
			if err != nil {
				log.Warn("webhook dedup unavailable", "err", err)
			} else if !first {
				c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
				return
			}
		}

		if err := h.Sink(c.Request.Context(), *event); err != nil {
			log.Error("agent webhook sink failed", "provider", code, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// requestURL rebuilds the public URL the vendor signed over, honoring the
// proxy headers a load balancer sets.
func requestURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
