package models

// RegistryStats is a point-in-time summary of subscription state.
type RegistryStats struct {
	Paid     int `json:"paid"`
	Active   int `json:"active"`
	Filtered int `json:"filtered"`
}

// MintViewerI is the view of the running application used by the HTTP API.
type MintViewerI interface {
	Stats() RegistryStats
	StreamState() string
}

// APIServer is the HTTP API lifecycle.
type APIServer interface {
	Start()
	Shutdown() error
}
