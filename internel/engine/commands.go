package engine

import "lansync/internel/shared"

type cmdKind int

const (
	cmdStartConnection cmdKind = iota
	cmdTransportConnected
	cmdTransportDisconnected
	cmdNetworkFrame
	cmdConfirmSas
	cmdRequestTree
	cmdSendTree
	cmdRequestFile
	cmdSendFileChunk
	cmdSendFileComplete
	cmdFatal
)

// command is the tagged union drained by the engine consumer. Only the
// fields relevant to the kind are populated.
type command struct {
	kind     cmdKind
	payload  []byte
	accepted bool
	files    []shared.FileEntry
	path     string
	offset   uint64
	data     []byte
	msg      string
}

func (k cmdKind) String() string {
	switch k {
	case cmdStartConnection:
		return "StartConnection"
	case cmdTransportConnected:
		return "TransportConnected"
	case cmdTransportDisconnected:
		return "TransportDisconnected"
	case cmdNetworkFrame:
		return "NetworkFrameReceived"
	case cmdConfirmSas:
		return "ConfirmSas"
	case cmdRequestTree:
		return "RequestTree"
	case cmdSendTree:
		return "SendTree"
	case cmdRequestFile:
		return "RequestFile"
	case cmdSendFileChunk:
		return "SendFileChunk"
	case cmdSendFileComplete:
		return "SendFileComplete"
	case cmdFatal:
		return "Fatal"
	default:
		return "UNKNOWN"
	}
}
