package models

// ConnectionStatus is recomputed on every health check and never stored.
type ConnectionStatus struct {
	TransportConnected bool
	SessionConnected   bool
}
