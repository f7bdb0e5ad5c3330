package ads

// Data area index groups.
const (
	IndexGroupPLCMemory       uint32 = 0x00004020
	IndexGroupPLCMemoryBit    uint32 = 0x00004021
	IndexGroupPLCDataArea     uint32 = 0x00004040
	IndexGroupPhysicalInputs  uint32 = 0x0000F020
	IndexGroupPhysicalOutputs uint32 = 0x0000F030
)

// Symbol service index groups.
const (
	IndexGroupSymbolHandleByName  uint32 = 0xF003 // READ_WRITE: name -> handle
	IndexGroupSymbolValueByName   uint32 = 0xF004 // READ_WRITE: name -> value
	IndexGroupSymbolValueByHandle uint32 = 0xF005 // READ/WRITE: offset is the handle
	IndexGroupReleaseSymbolHandle uint32 = 0xF006 // WRITE: 4-byte handle
	IndexGroupSymbolInfoByName    uint32 = 0xF007
	IndexGroupSymbolVersion       uint32 = 0xF008
	IndexGroupSymbolUpload        uint32 = 0xF00B // READ: encoded symbol table
	IndexGroupSymbolUploadInfo    uint32 = 0xF00C // READ: symbol count + table length
)

// IsSymbolService reports whether group is one of the symbol service groups
// rather than a data area.
func IsSymbolService(group uint32) bool {
	return group >= 0xF000 && group <= 0xF00F
}

// ADSState is the device run state reported by READ_STATE.
type ADSState uint16

const (
	StateInvalid      ADSState = 0
	StateIdle         ADSState = 1
	StateReset        ADSState = 2
	StateInit         ADSState = 3
	StateStart        ADSState = 4
	StateRun          ADSState = 5
	StateStop         ADSState = 6
	StateSaveConfig   ADSState = 7
	StateLoadConfig   ADSState = 8
	StatePowerFailure ADSState = 9
	StatePowerGood    ADSState = 10
	StateError        ADSState = 11
	StateShutdown     ADSState = 12
	StateSuspend      ADSState = 13
	StateResume       ADSState = 14
	StateConfig       ADSState = 15
	StateReconfig     ADSState = 16
	StateStopping     ADSState = 17
)

var stateNames = map[ADSState]string{
	StateInvalid:      "invalid",
	StateIdle:         "idle",
	StateReset:        "reset",
	StateInit:         "init",
	StateStart:        "start",
	StateRun:          "run",
	StateStop:         "stop",
	StateSaveConfig:   "save_config",
	StateLoadConfig:   "load_config",
	StatePowerFailure: "power_failure",
	StatePowerGood:    "power_good",
	StateError:        "error",
	StateShutdown:     "shutdown",
	StateSuspend:      "suspend",
	StateResume:       "resume",
	StateConfig:       "config",
	StateReconfig:     "reconfig",
	StateStopping:     "stopping",
}

func (s ADSState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is a defined state other than StateInvalid.
func (s ADSState) Valid() bool {
	_, ok := stateNames[s]
	return ok && s != StateInvalid
}

// ParseADSState resolves a state name as produced by String.
func ParseADSState(name string) (ADSState, bool) {
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return StateInvalid, false
}
