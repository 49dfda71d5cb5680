package shared

// HealthStatus is the result of a service health check.
type HealthStatus struct {
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Healthy returns a healthy status.
func Healthy(message string) HealthStatus {
	return HealthStatus{Healthy: true, Message: message}
}

// Unhealthy returns an unhealthy status.
func Unhealthy(message string) HealthStatus {
	return HealthStatus{Healthy: false, Message: message}
}
