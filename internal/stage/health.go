package stage

// Health reports whether a stage executor can currently do useful work,
// for example whether its API key is configured or its target directory
// is reachable.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a ready executor.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports an executor that cannot run, with the reason in detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
