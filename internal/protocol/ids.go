package protocol

import "github.com/a7g4/warp/internal/wire"

// Message ID assignments from spec §6.
const (
	IDRegisterRequest    wire.MessageID = 0x10
	IDRegisterResponse   wire.MessageID = 0x11
	IDMappingRequest     wire.MessageID = 0x12
	IDMappingResponse    wire.MessageID = 0x13
	IDDeregisterRequest  wire.MessageID = 0x14
	IDDeregisterResponse wire.MessageID = 0x15
	IDTunnelPayload      wire.MessageID = 0xF1
	IDPeerAddressOverride wire.MessageID = 0xF2
)
