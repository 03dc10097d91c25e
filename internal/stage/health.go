package stage

import "fmt"

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// Unhealthyf constructs an unhealthy Health record with a formatted detail.
func Unhealthyf(name, format string, args ...any) Health {
	return Health{Name: name, Ready: false, Detail: fmt.Sprintf(format, args...)}
}
