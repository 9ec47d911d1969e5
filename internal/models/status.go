package models

// StatusPayload is published to the status topic.
type StatusPayload struct {
	ClientID        string      `json:"clientId"`
	FirmwareVersion string      `json:"firmwareVersion"`
	SystemState     SystemState `json:"systemState"`
	RelayActivation string      `json:"relayActivation"`
	LastUpdate      string      `json:"lastUpdate"`
}

// DiscoveryPayload announces the device and its topics to the control plane.
type DiscoveryPayload struct {
	Name         string `json:"name"`
	DeviceClass  string `json:"deviceClass"`
	StatusTopic  string `json:"statusTopic"`
	ControlTopic string `json:"controlTopic"`
}

// ControlEnvelope is the inbound control message. Pointer fields distinguish
// an absent key from a zero value.
type ControlEnvelope struct {
	ClientID *string `json:"clientId"`
	Command  *int    `json:"command"`
}

// ActivationString renders the relay activation flag for status payloads.
func ActivationString(active bool) string {
	if active {
		return "ON"
	}
	return "OFF"
}
