package ams

// State flag bits for the StateFlags field in AMS Header.
const (
	// StateFlagResponse indicates a response packet (bit 0).
	// 0 = Request, 1 = Response
	StateFlagResponse uint16 = 0x0001

	// StateFlagADS must be set for ADS commands (bit 2).
	StateFlagADS uint16 = 0x0004

	// StateFlagUDP indicates UDP protocol (bit 7).
	StateFlagUDP uint16 = 0x0080
)

const (
	StateFlagsTCPRequest  = StateFlagADS
	StateFlagsTCPResponse = StateFlagADS | StateFlagResponse
	StateFlagsUDPRequest  = StateFlagADS | StateFlagUDP
	StateFlagsUDPResponse = StateFlagADS | StateFlagUDP | StateFlagResponse
)

// Common AMS port numbers.
const (
	PortRouter        Port = 1
	PortLogger        Port = 100
	PortEventLogger   Port = 110
	PortPLCRuntime1   Port = 851
	PortPLCRuntime2   Port = 852
	PortSystemService Port = 10000
)

// DefaultTCPPort is the AMS/TCP listening port used by TwinCAT routers.
const DefaultTCPPort = 48898

// DefaultMaxFrameSize bounds the AMS/TCP length field a Framer will accept.
const DefaultMaxFrameSize = 16 * 1024 * 1024
