package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/mrpasztoradam/goadsdev"
	"github.com/mrpasztoradam/goadsdev/internal/ads"
	"github.com/mrpasztoradam/goadsdev/internal/symbols"
)

// Service provides JSON-shaped operations over a device: symbol values,
// device state and session bookkeeping.
type Service struct {
	device    *goadsdev.Device
	watches   *WatchManager
	maxBatch  int
	logger    goadsdev.Logger
	startTime time.Time
}

// NewService creates a service for d.
func NewService(d *goadsdev.Device, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = d.Logger()
	}
	return &Service{
		device:    d,
		watches:   NewWatchManager(d.Database(), cfg.MaxWatches, logger),
		maxBatch:  cfg.MaxBatchSize,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Watches returns the websocket watch manager.
func (s *Service) Watches() *WatchManager {
	return s.watches
}

func (s *Service) lookup(name string) (*symbols.Symbol, error) {
	sym, err := s.device.Database().ResolveByName(name)
	if err != nil {
		return nil, fromDeviceError(name, err)
	}
	return sym, nil
}

// ReadSymbol reads a single symbol value
func (s *Service) ReadSymbol(name string) (*SymbolValueResponse, error) {
	sym, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	value, err := readValue(sym)
	if err != nil {
		return nil, fromDeviceError(name, err)
	}
	return &SymbolValueResponse{
		Symbol: sym.Name,
		Type:   sym.TypeName(),
		Value:  value,
	}, nil
}

// WriteSymbol writes a single symbol value and returns the stored value.
func (s *Service) WriteSymbol(name string, value any) (*WriteSymbolResponse, error) {
	sym, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	if err := writeValue(sym, value); err != nil {
		return nil, fromDeviceError(name, err)
	}
	s.logger.Debug("symbol written via API", "symbol", name)

	stored, err := readValue(sym)
	if err != nil {
		return nil, fromDeviceError(name, err)
	}
	return &WriteSymbolResponse{
		Success: true,
		Symbol:  sym.Name,
		Value:   stored,
	}, nil
}

// BatchRead reads multiple symbols
func (s *Service) BatchRead(names []string) (*BatchReadResponse, error) {
	if s.maxBatch > 0 && len(names) > s.maxBatch {
		return nil, NewBatchSizeExceededError(len(names), s.maxBatch)
	}

	data := make(map[string]any)
	errs := make(map[string]string)
	for _, name := range names {
		res, err := s.ReadSymbol(name)
		if err != nil {
			errs[name] = err.Error()
			continue
		}
		data[name] = res.Value
	}

	return &BatchReadResponse{
		Success: len(errs) == 0,
		Data:    data,
		Errors:  errs,
	}, nil
}

// BatchWrite writes multiple symbols
func (s *Service) BatchWrite(writes map[string]any) (*BatchWriteResponse, error) {
	if s.maxBatch > 0 && len(writes) > s.maxBatch {
		return nil, NewBatchSizeExceededError(len(writes), s.maxBatch)
	}

	results := make(map[string]bool)
	errs := make(map[string]string)
	for name, value := range writes {
		if _, err := s.WriteSymbol(name, value); err != nil {
			results[name] = false
			errs[name] = err.Error()
			continue
		}
		results[name] = true
	}

	return &BatchWriteResponse{
		Success: len(errs) == 0,
		Results: results,
		Errors:  errs,
	}, nil
}

// Symbols lists the resolvable symbols, filtered by a case-insensitive name
// fragment when query is not empty.
func (s *Service) Symbols(query string) *SymbolTableResponse {
	db := s.device.Database()
	list := db.Symbols()
	if query != "" {
		list = db.Find(query)
	}

	infos := make([]SymbolInfo, len(list))
	for i, sym := range list {
		infos[i] = symbolToInfo(sym)
	}
	return &SymbolTableResponse{
		Count:   len(infos),
		Symbols: infos,
	}
}

// SymbolInfo retrieves metadata for a specific symbol
func (s *Service) SymbolInfo(name string) (*SymbolInfo, error) {
	sym, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	info := symbolToInfo(sym)
	return &info, nil
}

func (s *Service) Areas() *AreasResponse {
	areas := s.device.Database().Areas()
	out := make([]AreaInfo, len(areas))
	for i, a := range areas {
		out[i] = AreaInfo{
			IndexGroup: a.IndexGroup,
			Kind:       a.Kind,
			Size:       a.Size(),
			Symbols:    a.SymbolCount(),
		}
	}
	return &AreasResponse{Count: len(out), Areas: out}
}

func (s *Service) Health() *HealthResponse {
	return &HealthResponse{
		Status:    "ok",
		State:     s.device.State().ADSState.String(),
		Timestamp: time.Now(),
	}
}

func (s *Service) Info() *InfoResponse {
	addr := s.device.Address()
	return &InfoResponse{
		Name:         s.device.Name(),
		Version:      s.device.Version().String(),
		AMSNetID:     addr.NetID.String(),
		AMSPort:      uint16(addr.Port),
		State:        s.device.State().ADSState.String(),
		Areas:        len(s.device.Database().Areas()),
		SymbolCount:  len(s.device.Database().Symbols()),
		Sessions:     len(s.device.Sessions()),
		Watches:      s.watches.Count(),
		ServerUptime: time.Since(s.startTime).Truncate(time.Second).String(),
		Build:        goadsdev.GetBuildInfo().String(),
	}
}

func (s *Service) State() *StateResponse {
	st := s.device.State()
	return &StateResponse{
		ADSState:     uint16(st.ADSState),
		ADSStateName: st.ADSState.String(),
		DeviceState:  st.DeviceState,
	}
}

// SetState moves the device to the named state.
func (s *Service) SetState(req SetStateRequest) (*StateResponse, error) {
	state, ok := ads.ParseADSState(strings.ToLower(req.State))
	if !ok {
		return nil, NewInvalidStateError(req.State)
	}
	if err := s.device.SetState(state, req.DeviceState); err != nil {
		return nil, NewInvalidStateError(req.State)
	}
	return s.State(), nil
}

// Control executes a control command (start, stop, reset)
func (s *Service) Control(command string) (*ControlResponse, error) {
	var state ads.ADSState
	switch command {
	case "start", "run":
		state = ads.StateRun
	case "stop":
		state = ads.StateStop
	case "reset":
		state = ads.StateReset
	case "config":
		state = ads.StateConfig
	default:
		return nil, NewInvalidRequestError(fmt.Sprintf("unknown command: %s (supported: start, stop, reset, config)", command))
	}

	if err := s.device.SetState(state, s.device.State().DeviceState); err != nil {
		return nil, NewInternalError(err.Error())
	}
	return &ControlResponse{
		Success: true,
		Command: command,
		State:   state.String(),
	}, nil
}

func (s *Service) Sessions() *SessionsResponse {
	list := s.device.Sessions()
	return &SessionsResponse{Count: len(list), Sessions: list}
}

// Metrics returns the device counters when the device collects them in
// memory.
func (s *Service) Metrics() (*goadsdev.MetricsSnapshot, error) {
	m, ok := s.device.Metrics().(*goadsdev.InMemoryMetrics)
	if !ok {
		return nil, NewNotFoundError("metrics collection is disabled")
	}
	snap := m.Snapshot()
	return &snap, nil
}

func symbolToInfo(sym *symbols.Symbol) SymbolInfo {
	return SymbolInfo{
		Name:        sym.Name,
		Type:        sym.TypeName(),
		Size:        sym.Size(),
		IndexGroup:  sym.IndexGroup(),
		IndexOffset: sym.Offset,
		Comment:     sym.Comment,
	}
}

// readValue decodes a symbol into a JSON friendly value.
func readValue(sym *symbols.Symbol) (any, error) {
	v, err := sym.Read()
	if err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case []byte:
		if sym.Type == symbols.DataTypeString {
			return ads.CString(x), nil
		}
		// Keep byte arrays as numbers rather than base64.
		out := make([]uint16, len(x))
		for i, b := range x {
			out[i] = uint16(b)
		}
		return out, nil
	}
	return v, nil
}

// writeValue stores a decoded JSON value. Strings given for non-string
// symbols are parsed the way the console parses them.
func writeValue(sym *symbols.Symbol, v any) error {
	if text, ok := v.(string); ok && sym.Type != symbols.DataTypeString {
		parsed, err := symbols.ParseValue(sym.Type, sym.ArrayLength, text)
		if err != nil {
			return &symbols.TypeMismatchError{Symbol: sym.Name, Type: sym.Type, ArrayLength: sym.ArrayLength, Value: text}
		}
		v = parsed
	}
	return sym.Write(v)
}
