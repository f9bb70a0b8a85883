package httpapi

import (
	"errors"
	"net/http"

	"channel-gateway/internal/providerstore"
	"channel-gateway/internal/registry"
	"channel-gateway/internal/telephony"
	"channel-gateway/internal/vault"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
//
// Decrypted credentials never appear in a response; config is always masked.

type Handlers struct {
	Providers *providerstore.Store
	Registry  *registry.Registry
}

type createProviderRequest struct {
	Code   string         `json:"code"`
	Name   string         `json:"name"`
	Config map[string]any `json:"config"`
}

// CreateProvider registers a vendor integration for a workspace. Credentials
// are encrypted before they touch the database.
func (h Handlers) CreateProvider(c *gin.Context) {
	workspace := c.Param("workspace")
	if workspace == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspace required"})
		return
	}

	var req createProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !h.Registry.IsSupported(req.Code) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported provider code"})
		return
	}

	p, err := h.Providers.Create(c.Request.Context(), workspace, req.Code, req.Name, req.Config)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusCreated, providerstore.ProviderView{
		Provider:     p,
		MaskedConfig: vault.MaskConfig(req.Config),
	})
}

// ListProviders returns the workspace's provider records with masked configs.
func (h Handlers) ListProviders(c *gin.Context) {
	workspace := c.Param("workspace")
	if workspace == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "workspace required"})
		return
	}

	views, err := h.Providers.List(c.Request.Context(), workspace)
	if err != nil {
		abortStoreError(c, err)
		return
	}
	if views == nil {
		views = []providerstore.ProviderView{}
	}
	c.JSON(http.StatusOK, gin.H{"providers": views})
}

type updateCredentialsRequest struct {
	Config map[string]any `json:"config"`
}

// UpdateProviderCredentials merges new values into the stored config. Keys
// absent from the request keep their current values.
func (h Handlers) UpdateProviderCredentials(c *gin.Context) {
	var req updateCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(req.Config) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "config required"})
		return
	}

	if err := h.Providers.UpdateCredentials(c.Request.Context(), c.Param("id"), req.Config); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

type setEnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h Handlers) SetProviderEnabled(c *gin.Context) {
	var req setEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "enabled required"})
		return
	}

	if err := h.Providers.SetEnabled(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h Handlers) DeleteProvider(c *gin.Context) {
	if err := h.Providers.Delete(c.Request.Context(), c.Param("id")); err != nil {
		abortStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ValidateProviderCredentials runs the vendor-side credential check with the
// stored config. Invalid credentials are a 200 with valid=false; only missing
// records and infrastructure faults are errors.
func (h Handlers) ValidateProviderCredentials(c *gin.Context) {
	adapter, creds, ok := h.telephonyAdapter(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, adapter.ValidateCredentials(c.Request.Context(), creds))
}

// ListProviderNumbers lists the phone numbers owned by the workspace's vendor
// account.
func (h Handlers) ListProviderNumbers(c *gin.Context) {
	adapter, creds, ok := h.telephonyAdapter(c)
	if !ok {
		return
	}

	numbers, err := adapter.ListNumbers(c.Request.Context(), creds)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if numbers == nil {
		numbers = []telephony.PhoneNumber{}
	}
	c.JSON(http.StatusOK, gin.H{"numbers": numbers})
}

func (h Handlers) telephonyAdapter(c *gin.Context) (telephony.Adapter, telephony.Credentials, bool) {
	code := telephony.Code(c.Param("code"))
	adapter, err := h.Registry.Telephony(code)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return nil, nil, false
	}

	creds, err := h.Providers.Credentials(c.Request.Context(), c.Param("workspace"), string(code))
	if err != nil {
		abortStoreError(c, err)
		return nil, nil, false
	}
	return adapter, telephony.Credentials(creds), true
}

func abortStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, providerstore.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "provider not found"})
	case errors.Is(err, providerstore.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "provider store failure"})
	}
}
