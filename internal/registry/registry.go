package registry

import (
	"errors"
	"sync"

	"channel-gateway/internal/aiagent"
	"channel-gateway/internal/telephony"
)

var ErrUnknownProvider = errors.New("registry: unknown provider")

// Registry lazily constructs and caches one telephony adapter per provider
// code.
//
// It is an explicit value constructed at process start and passed by
// reference; there is no hidden module-level cache. Telephony adapters take
// credentials per call and hold no state, so a cached instance serves all
// callers concurrently. Agent adapters are different: Initialize stores the
// workspace's config on the adapter, so they are constructed per caller and
// never shared — a cached agent adapter would let one workspace's webhook
// secret verify another workspace's requests.
type Registry struct {
	mu        sync.Mutex
	telephony map[telephony.Code]telephony.Adapter
}

func New() *Registry {
	return &Registry{
		telephony: make(map[telephony.Code]telephony.Adapter),
	}
}

// Telephony returns the cached adapter for code, constructing it on first use.
func (r *Registry) Telephony(code telephony.Code) (telephony.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.telephony[code]; ok {
		return a, nil
	}

	var a telephony.Adapter
	switch code {
	case telephony.CodeTwilio:
		a = telephony.NewTwilio()
	case telephony.CodeTelnyx:
		a = telephony.NewTelnyx()
	case telephony.CodeVonage:
		a = telephony.NewVonage()
	default:
		return nil, ErrUnknownProvider
	}
	r.telephony[code] = a
	return a, nil
}

// AllTelephony returns one adapter per known telephony code.
func (r *Registry) AllTelephony() []telephony.Adapter {
	adapters := make([]telephony.Adapter, 0, len(telephony.Codes()))
	for _, code := range telephony.Codes() {
		a, err := r.Telephony(code)
		if err != nil {
			continue
		}
		adapters = append(adapters, a)
	}
	return adapters
}

// Agent constructs a fresh agent adapter for code. Callers must Initialize it
// with their platform config before use; the instance is theirs alone and must
// not be cached across workspaces.
func (r *Registry) Agent(code aiagent.Code) (aiagent.AgentAdapter, error) {
	switch code {
	case aiagent.CodeVAPI:
		return aiagent.NewVAPI(), nil
	case aiagent.CodeElevenLabs:
		return aiagent.NewElevenLabs(), nil
	default:
		return nil, ErrUnknownProvider
	}
}

// IsSupported reports whether code names any known provider. Use it to narrow
// external input before calling Telephony or Agent.
func (r *Registry) IsSupported(code string) bool {
	for _, c := range telephony.Codes() {
		if string(c) == code {
			return true
		}
	}
	for _, c := range aiagent.Codes() {
		if string(c) == code {
			return true
		}
	}
	return false
}
