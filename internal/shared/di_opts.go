package shared

import "time"

// RegisterOption is a configuration option for service registration.
type RegisterOption func(*Descriptor)

// Singleton makes the service a singleton (default).
func Singleton() RegisterOption {
	return func(d *Descriptor) { d.Lifetime = LifetimeSingleton }
}

// Transient makes the service created on each resolve.
func Transient() RegisterOption {
	return func(d *Descriptor) { d.Lifetime = LifetimeTransient }
}

// Scoped makes the service live for the duration of a scope.
func Scoped() RegisterOption {
	return func(d *Descriptor) { d.Lifetime = LifetimeScoped }
}

// WithRequires declares required dependencies.
func WithRequires(ids ...Identity) RegisterOption {
	return func(d *Descriptor) { d.Required = append(d.Required, ids...) }
}

// WithOptional declares optional dependencies.
func WithOptional(ids ...Identity) RegisterOption {
	return func(d *Descriptor) { d.Optional = append(d.Optional, ids...) }
}

// WithCapabilities declares additional contracts the service satisfies.
func WithCapabilities(ids ...Identity) RegisterOption {
	return func(d *Descriptor) { d.Capabilities = append(d.Capabilities, ids...) }
}

// WithInitTimeout overrides the default hook timeout for this service.
func WithInitTimeout(timeout time.Duration) RegisterOption {
	return func(d *Descriptor) { d.InitTimeout = timeout }
}

// WithMetadata adds diagnostic metadata.
func WithMetadata(key, value string) RegisterOption {
	return func(d *Descriptor) {
		if d.Metadata == nil {
			d.Metadata = make(map[string]string)
		}

		d.Metadata[key] = value
	}
}

// MergeOptions combines multiple options.
func MergeOptions(opts []RegisterOption) RegisterOption {
	return func(d *Descriptor) {
		for _, opt := range opts {
			if opt != nil {
				opt(d)
			}
		}
	}
}

// NewDescriptor builds a descriptor around factory.
func NewDescriptor(id Identity, factory Factory, opts ...RegisterOption) Descriptor {
	d := Descriptor{Identity: id, Factory: factory}
	MergeOptions(opts)(&d)

	return d
}
