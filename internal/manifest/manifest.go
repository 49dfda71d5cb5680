package manifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/conductor/errors"
	"github.com/xraph/conductor/internal/registry"
	"github.com/xraph/conductor/internal/shared"
)

// Manifest describes a topology of simulated services.
type Manifest struct {
	Services []ServiceConfig `json:"services" yaml:"services"`
}

// ServiceConfig is one simulated service. Durations are Go duration strings.
type ServiceConfig struct {
	Name          string            `json:"name" yaml:"name"`
	Lifetime      string            `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	Requires      []string          `json:"requires,omitempty" yaml:"requires,omitempty"`
	Optional      []string          `json:"optional,omitempty" yaml:"optional,omitempty"`
	Capabilities  []string          `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	InitDelay     string            `json:"init_delay,omitempty" yaml:"init_delay,omitempty"`
	ShutdownDelay string            `json:"shutdown_delay,omitempty" yaml:"shutdown_delay,omitempty"`
	Timeout       string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	FailInit      bool              `json:"fail_init,omitempty" yaml:"fail_init,omitempty"`
	FailShutdown  bool              `json:"fail_shutdown,omitempty" yaml:"fail_shutdown,omitempty"`
	FailHealth    bool              `json:"fail_health,omitempty" yaml:"fail_health,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// LoadFile reads and validates a manifest file.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ErrConfiguration(fmt.Sprintf("failed to read manifest %q", path), err)
	}

	return Parse(data)
}

// Parse decodes and validates a YAML manifest. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, errors.ErrConfiguration("failed to parse manifest", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks names, lifetimes and durations.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Services))

	for i, s := range m.Services {
		if s.Name == "" {
			return errors.ErrConfiguration(fmt.Sprintf("service #%d has no name", i), nil)
		}

		if seen[s.Name] {
			return errors.ErrConfiguration(fmt.Sprintf("service %q declared twice", s.Name), nil)
		}

		seen[s.Name] = true

		if _, err := s.descriptor(); err != nil {
			return err
		}
	}

	return nil
}

// Descriptors converts the manifest into service descriptors whose
// factories build simulated services.
func (m *Manifest) Descriptors() ([]shared.Descriptor, error) {
	out := make([]shared.Descriptor, 0, len(m.Services))

	for _, s := range m.Services {
		d, err := s.descriptor()
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

// Register adds every service of the manifest to r.
func (m *Manifest) Register(r *registry.Registry) error {
	descs, err := m.Descriptors()
	if err != nil {
		return err
	}

	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return err
		}
	}

	return nil
}

func (s ServiceConfig) descriptor() (shared.Descriptor, error) {
	lifetime := shared.LifetimeSingleton

	if s.Lifetime != "" {
		l, err := shared.ParseLifetime(s.Lifetime)
		if err != nil {
			return shared.Descriptor{}, errors.ErrConfiguration(fmt.Sprintf("service %q", s.Name), err)
		}

		lifetime = l
	}

	initDelay, err := parseDuration(s.Name, "init_delay", s.InitDelay)
	if err != nil {
		return shared.Descriptor{}, err
	}

	shutdownDelay, err := parseDuration(s.Name, "shutdown_delay", s.ShutdownDelay)
	if err != nil {
		return shared.Descriptor{}, err
	}

	timeout, err := parseDuration(s.Name, "timeout", s.Timeout)
	if err != nil {
		return shared.Descriptor{}, err
	}

	cfg := s
	factory := func(ctx context.Context, r shared.Resolver) (any, error) {
		return &Simulated{
			Name:          shared.Identity(cfg.Name),
			InitDelay:     initDelay,
			ShutdownDelay: shutdownDelay,
			FailInit:      cfg.FailInit,
			FailShutdown:  cfg.FailShutdown,
			FailHealth:    cfg.FailHealth,
			Declared:      append(toIdentities(cfg.Requires), toIdentities(cfg.Optional)...),
		}, nil
	}

	opts := []shared.RegisterOption{
		shared.WithRequires(toIdentities(s.Requires)...),
		shared.WithOptional(toIdentities(s.Optional)...),
		shared.WithCapabilities(toIdentities(s.Capabilities)...),
		shared.WithInitTimeout(timeout),
	}

	for k, v := range s.Metadata {
		opts = append(opts, shared.WithMetadata(k, v))
	}

	d := shared.NewDescriptor(shared.Identity(s.Name), factory, opts...)
	d.Lifetime = lifetime

	return d, nil
}

func parseDuration(service, field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, errors.ErrConfiguration(fmt.Sprintf("service %q: invalid %s %q", service, field, value), err)
	}

	return d, nil
}

func toIdentities(names []string) []shared.Identity {
	if len(names) == 0 {
		return nil
	}

	out := make([]shared.Identity, len(names))
	for i, n := range names {
		out[i] = shared.Identity(n)
	}

	return out
}
