package conductor

import (
	"github.com/xraph/conductor/internal/graph"
	"github.com/xraph/conductor/internal/orchestrator"
	"github.com/xraph/conductor/internal/resolve"
	"github.com/xraph/conductor/internal/shared"
	"github.com/xraph/conductor/logger"
	"github.com/xraph/conductor/observability"
)

// =============================================================================
// SERVICE DECLARATION
// =============================================================================

type (
	Identity           = shared.Identity
	Lifetime           = shared.Lifetime
	Descriptor         = shared.Descriptor
	Factory            = shared.Factory
	Constructor        = shared.Constructor
	Resolver           = shared.Resolver
	RegisterOption     = shared.RegisterOption
	Service            = shared.Service
	DependencyAccessor = shared.DependencyAccessor
	HealthStatus       = shared.HealthStatus
	Scope              = resolve.Scope
)

const (
	LifetimeSingleton = shared.LifetimeSingleton
	LifetimeTransient = shared.LifetimeTransient
	LifetimeScoped    = shared.LifetimeScoped

	RegistryIdentity     = shared.RegistryIdentity
	ResolverIdentity     = shared.ResolverIdentity
	OrchestratorIdentity = shared.OrchestratorIdentity
)

var (
	Singleton        = shared.Singleton
	Transient        = shared.Transient
	Scoped           = shared.Scoped
	WithRequires     = shared.WithRequires
	WithOptional     = shared.WithOptional
	WithCapabilities = shared.WithCapabilities
	WithInitTimeout  = shared.WithInitTimeout
	WithMetadata     = shared.WithMetadata
	NewDescriptor    = shared.NewDescriptor
	ParseLifetime    = shared.ParseLifetime
	Healthy          = shared.Healthy
	Unhealthy        = shared.Unhealthy
)

// =============================================================================
// GRAPH
// =============================================================================

type (
	Graph       = graph.Graph
	Node        = graph.Node
	Statistics  = graph.Statistics
	GraphReport = graph.Report
)

// =============================================================================
// LIFECYCLE
// =============================================================================

type (
	State                = orchestrator.State
	Status               = orchestrator.Status
	Outcome              = orchestrator.Outcome
	Outcomes             = orchestrator.Outcomes
	InitializationReport = orchestrator.InitializationReport
	ShutdownReport       = orchestrator.ShutdownReport
	RestartReport        = orchestrator.RestartReport
	HealthReport         = orchestrator.HealthReport
	Transition           = orchestrator.Transition
	ServiceStats         = orchestrator.ServiceStats
	OrchestratorConfig   = orchestrator.Config
)

const (
	StateUnregistered  = orchestrator.StateUnregistered
	StateUninitialized = orchestrator.StateUninitialized
	StateInitializing  = orchestrator.StateInitializing
	StateRunning       = orchestrator.StateRunning
	StateError         = orchestrator.StateError
	StateShuttingDown  = orchestrator.StateShuttingDown
	StateShutdown      = orchestrator.StateShutdown

	StatusInitialized = orchestrator.StatusInitialized
	StatusSkipped     = orchestrator.StatusSkipped
	StatusFailed      = orchestrator.StatusFailed
	StatusShutDown    = orchestrator.StatusShutDown
)

var DefaultOrchestratorConfig = orchestrator.DefaultConfig

// =============================================================================
// AMBIENT
// =============================================================================

type (
	Logger  = logger.Logger
	Metrics = observability.Metrics
	Tracer  = observability.Tracer
)
