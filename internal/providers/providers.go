package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"provider-integrity-go/internal/config"
	"provider-integrity-go/internal/engine"
	"provider-integrity-go/internal/models"
	"provider-integrity-go/internal/store"
)

// Profile is an engine.Provider that also speaks the provider's reply format.
type Profile interface {
	engine.Provider
	// Render turns the engine's outcome into the provider-native reply body.
	Render(resp *models.ProviderResponse, err error) ([]byte, error)
}

// Settings is one entry of the providers file.
type Settings struct {
	Name         string `yaml:"name"`
	Profile      string `yaml:"profile"`
	Enabled      bool   `yaml:"enabled"`
	MatchPayload *bool  `yaml:"match_payload"`
}

type providersFile struct {
	Providers []Settings `yaml:"providers"`
}

// New builds the profile named by settings. Profiles default to their
// provider's redelivery policy unless MatchPayload overrides it.
func New(s Settings) (Profile, error) {
	name := s.Name
	if name == "" {
		name = s.Profile
	}

	var p Profile
	switch s.Profile {
	case "hub88":
		p = newHub88(name, boolOr(s.MatchPayload, true))
	case "playngo":
		p = newPlayNGo(name, boolOr(s.MatchPayload, false))
	case "slotegrator":
		p = newSlotegrator(name, boolOr(s.MatchPayload, false))
	case "canonical":
		p = &canonical{CanonicalProvider: engine.NewCanonicalProvider(name, boolOr(s.MatchPayload, false))}
	default:
		return nil, fmt.Errorf("%w: profile %q", engine.ErrUnknownProvider, s.Profile)
	}
	return p, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Registry holds the enabled provider profiles by name.
type Registry struct {
	profiles map[string]Profile
}

func NewRegistry(settings []Settings) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, s := range settings {
		if !s.Enabled {
			continue
		}
		p, err := New(s)
		if err != nil {
			return nil, err
		}
		if _, dup := r.profiles[p.Name()]; dup {
			return nil, fmt.Errorf("provider %s configured twice", p.Name())
		}
		r.profiles[p.Name()] = p
	}
	if len(r.profiles) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}
	return r, nil
}

// LoadRegistry reads a providers file.
func LoadRegistry(path string) (*Registry, error) {
	var file providersFile
	if err := config.LoadYAML(path, &file); err != nil {
		return nil, err
	}
	return NewRegistry(file.Providers)
}

func (r *Registry) Get(name string) (Profile, error) {
	p, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveAlias maps a native action name onto an engine event type. Canonical
// names are always accepted.
func resolveAlias(aliases map[string]models.EventType, action string) (models.EventType, error) {
	if et, ok := aliases[action]; ok {
		return et, nil
	}
	if et, ok := models.ParseEventType(action); ok {
		return et, nil
	}
	return "", fmt.Errorf("%w: %q", engine.ErrUnknownEventType, action)
}

func unmarshal(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidPayload, err)
	}
	return nil
}

// failureKind groups engine errors for provider error codes.
type failureKind int

const (
	failureInternal failureKind = iota
	failureUnknownUser
	failureDuplicate
	failureInFlight
	failureBadRequest
)

func classify(err error) failureKind {
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		return failureUnknownUser
	case errors.Is(err, store.ErrPayloadMismatch):
		return failureDuplicate
	case errors.Is(err, engine.ErrActionInFlight):
		return failureInFlight
	case engine.IsProtocolError(err):
		return failureBadRequest
	}
	return failureInternal
}

type canonical struct {
	*engine.CanonicalProvider
}

type canonicalError struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *canonical) Render(resp *models.ProviderResponse, err error) ([]byte, error) {
	if err != nil {
		code := "INTERNAL_ERROR"
		switch classify(err) {
		case failureUnknownUser:
			code = "USER_NOT_FOUND"
		case failureDuplicate:
			code = "PAYLOAD_MISMATCH"
		case failureInFlight:
			code = models.CodeInFlight
		case failureBadRequest:
			code = "BAD_REQUEST"
		}
		return json.Marshal(canonicalError{Code: code, Message: err.Error()})
	}
	return json.Marshal(resp)
}
