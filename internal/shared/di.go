package shared

import (
	"context"
	"fmt"
	"time"
)

// Identity names a service contract. It is the registry and graph key.
type Identity string

func (id Identity) String() string {
	return string(id)
}

// Identities converts ids to plain strings.
func Identities(ids []Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}

	return out
}

// Infrastructure identities resolve to the container itself. They never
// become graph nodes and a dependency on them is always satisfied.
const (
	RegistryIdentity     Identity = "conductor.registry"
	ResolverIdentity     Identity = "conductor.resolver"
	OrchestratorIdentity Identity = "conductor.orchestrator"
)

// IsInfrastructure reports whether id is one of the container's own identities.
func IsInfrastructure(id Identity) bool {
	switch id {
	case RegistryIdentity, ResolverIdentity, OrchestratorIdentity:
		return true
	default:
		return false
	}
}

// Lifetime governs instance sharing.
type Lifetime int

const (
	LifetimeSingleton Lifetime = iota
	LifetimeTransient
	LifetimeScoped
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeSingleton:
		return "singleton"
	case LifetimeTransient:
		return "transient"
	case LifetimeScoped:
		return "scoped"
	default:
		return fmt.Sprintf("lifetime(%d)", int(l))
	}
}

// Valid reports whether l is a known lifetime.
func (l Lifetime) Valid() bool {
	return l >= LifetimeSingleton && l <= LifetimeScoped
}

// ParseLifetime parses the textual form produced by String.
func ParseLifetime(s string) (Lifetime, error) {
	switch s {
	case "", "singleton":
		return LifetimeSingleton, nil
	case "transient":
		return LifetimeTransient, nil
	case "scoped":
		return LifetimeScoped, nil
	default:
		return 0, fmt.Errorf("unknown lifetime %q", s)
	}
}

// Resolver resolves identities to live instances.
type Resolver interface {
	Resolve(ctx context.Context, id Identity) (any, error)
	TryResolve(ctx context.Context, id Identity) (any, bool)
}

// Factory creates a service instance.
type Factory func(ctx context.Context, r Resolver) (any, error)

// Constructor is a declarative constructor. Params are resolved in order and
// handed to Build; an unresolvable param is passed as nil only when the
// descriptor lists it as optional.
type Constructor struct {
	Params []Identity
	Build  func(args []any) (any, error)
}

// Descriptor describes a registered service. It is copied on registration
// and never mutated afterwards.
type Descriptor struct {
	Identity    Identity
	Lifetime    Lifetime
	Factory     Factory
	Constructor *Constructor
	Instance    any

	Required     []Identity
	Optional     []Identity
	Capabilities []Identity

	// InitTimeout overrides the orchestrator's default hook timeout.
	InitTimeout time.Duration
	Metadata    map[string]string
}

// HasBinding reports whether the descriptor can produce an instance.
func (d Descriptor) HasBinding() bool {
	return d.Factory != nil || d.Instance != nil || (d.Constructor != nil && d.Constructor.Build != nil)
}

// Dependencies returns required followed by optional identities.
func (d Descriptor) Dependencies() []Identity {
	deps := make([]Identity, 0, len(d.Required)+len(d.Optional))
	deps = append(deps, d.Required...)

	return append(deps, d.Optional...)
}

// IsRequired reports whether id is a required dependency.
func (d Descriptor) IsRequired(id Identity) bool {
	for _, r := range d.Required {
		if r == id {
			return true
		}
	}

	return false
}

// IsOptional reports whether id is an optional dependency.
func (d Descriptor) IsOptional(id Identity) bool {
	for _, o := range d.Optional {
		if o == id {
			return true
		}
	}

	return false
}

// Provides reports whether the descriptor satisfies capability.
func (d Descriptor) Provides(capability Identity) bool {
	if d.Identity == capability {
		return true
	}

	for _, c := range d.Capabilities {
		if c == capability {
			return true
		}
	}

	return false
}

// Clone returns a deep copy so later caller mutations cannot leak in.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.Required = append([]Identity(nil), d.Required...)
	out.Optional = append([]Identity(nil), d.Optional...)
	out.Capabilities = append([]Identity(nil), d.Capabilities...)

	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}

	if d.Constructor != nil {
		c := *d.Constructor
		c.Params = append([]Identity(nil), d.Constructor.Params...)
		out.Constructor = &c
	}

	return out
}
