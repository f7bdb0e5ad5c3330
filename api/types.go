package api

import (
	"time"

	"github.com/mrpasztoradam/goadsdev"
)

// SymbolValueResponse represents a single symbol read response
type SymbolValueResponse struct {
	Symbol string `json:"symbol"`
	Type   string `json:"type"`
	Value  any    `json:"value"`
}

// WriteSymbolRequest represents a single symbol write request. Value is a
// JSON number, bool, string or array matching the symbol's type; strings
// are also accepted for numeric symbols and parsed.
type WriteSymbolRequest struct {
	Value any `json:"value"`
}

type WriteSymbolResponse struct {
	Success bool   `json:"success"`
	Symbol  string `json:"symbol"`
	Value   any    `json:"value"`
}

type BatchReadRequest struct {
	Symbols []string `json:"symbols"`
}

type BatchReadResponse struct {
	Success bool              `json:"success"`
	Data    map[string]any    `json:"data"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type BatchWriteRequest struct {
	Writes map[string]any `json:"writes"`
}

type BatchWriteResponse struct {
	Success bool              `json:"success"`
	Results map[string]bool   `json:"results"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// SymbolInfo represents metadata about a symbol
type SymbolInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        uint32 `json:"size"`
	IndexGroup  uint32 `json:"index_group"`
	IndexOffset uint32 `json:"index_offset"`
	Comment     string `json:"comment,omitempty"`
}

type SymbolTableResponse struct {
	Count   int          `json:"count"`
	Symbols []SymbolInfo `json:"symbols"`
}

// AreaInfo describes one data area of the database.
type AreaInfo struct {
	IndexGroup uint32 `json:"index_group"`
	Kind       string `json:"kind"`
	Size       uint32 `json:"size"`
	Symbols    int    `json:"symbols"`
}

type AreasResponse struct {
	Count int        `json:"count"`
	Areas []AreaInfo `json:"areas"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// InfoResponse describes the device behind the API.
type InfoResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	AMSNetID     string `json:"ams_net_id"`
	AMSPort      uint16 `json:"ams_port"`
	State        string `json:"state"`
	Areas        int    `json:"areas"`
	SymbolCount  int    `json:"symbol_count"`
	Sessions     int    `json:"sessions"`
	Watches      int    `json:"watches"`
	ServerUptime string `json:"server_uptime"`
	Build        string `json:"build"`
}

// StateResponse represents device state information
type StateResponse struct {
	ADSState     uint16 `json:"ads_state"`
	ADSStateName string `json:"ads_state_name"`
	DeviceState  uint16 `json:"device_state"`
}

// SetStateRequest changes the device state. State is a state name such as
// "run" or "stop".
type SetStateRequest struct {
	State       string `json:"state"`
	DeviceState uint16 `json:"device_state"`
}

// ControlRequest represents a control operation request
type ControlRequest struct {
	Command string `json:"command"` // "start", "stop", "reset"
}

type ControlResponse struct {
	Success bool   `json:"success"`
	Command string `json:"command"`
	State   string `json:"state"`
}

type SessionsResponse struct {
	Count    int                    `json:"count"`
	Sessions []goadsdev.SessionInfo `json:"sessions"`
}

// ErrorResponse represents a generic error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains detailed error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
