package registry

// Service is a long-lived component with its own lifecycle, e.g. a
// subscription or a signal watcher.
type Service interface {
	Start() error
	Stop() error
}
