// Package wire defines the messages nodes exchange and how they are framed
// on a connection. A frame is a 12 byte command tag padded with zeros, a
// 4 byte big endian payload length and the JSON encoded payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ardanlabs/ledger/foundation/blockchain/database"
)

// ProtocolVersion is the version a node reports in the version message.
const ProtocolVersion = 1

// CommandLength is the size of the command tag at the start of a frame.
const CommandLength = 12

// MaxPayload is the largest payload a frame may carry.
const MaxPayload = 32 * 1024 * 1024

// Set of commands carried in the frame tag.
const (
	CmdVersion   = "version"
	CmdGetBlocks = "getblocks"
	CmdInv       = "inv"
	CmdGetData   = "getdata"
	CmdBlock     = "block"
	CmdTx        = "tx"
	CmdAddr      = "addr"
)

// Set of kinds an inventory or data request refers to.
const (
	KindBlock = "block"
	KindTx    = "tx"
)

// =============================================================================

// Message represents the behavior every message variant implements.
type Message interface {
	Command() string
}

// Version announces the height of the sender.
type Version struct {
	AddrFrom   string `json:"addr_from"`
	Version    int    `json:"version"`
	BestHeight int64  `json:"best_height"`
}

// GetBlocks asks for the hashes of every block the receiver has.
type GetBlocks struct {
	AddrFrom string `json:"addr_from"`
}

// Inv advertises block hashes or transaction ids, hex encoded.
type Inv struct {
	AddrFrom string   `json:"addr_from"`
	Kind     string   `json:"kind"`
	Items    []string `json:"items"`
}

// GetData asks for a single block or transaction.
type GetData struct {
	AddrFrom string `json:"addr_from"`
	Kind     string `json:"kind"`
	ID       string `json:"id"`
}

// Block carries a block.
type Block struct {
	AddrFrom string         `json:"addr_from"`
	Block    database.Block `json:"block"`
}

// Tx carries a transaction.
type Tx struct {
	AddrFrom    string               `json:"addr_from"`
	Transaction database.Transaction `json:"transaction"`
}

// Addr shares known peers.
type Addr struct {
	AddrFrom string   `json:"addr_from"`
	Peers    []string `json:"peers"`
}

// Command implements the Message interface.
func (Version) Command() string { return CmdVersion }

// Command implements the Message interface.
func (GetBlocks) Command() string { return CmdGetBlocks }

// Command implements the Message interface.
func (Inv) Command() string { return CmdInv }

// Command implements the Message interface.
func (GetData) Command() string { return CmdGetData }

// Command implements the Message interface.
func (Block) Command() string { return CmdBlock }

// Command implements the Message interface.
func (Tx) Command() string { return CmdTx }

// Command implements the Message interface.
func (Addr) Command() string { return CmdAddr }

// From returns the address of the node that sent the message.
func From(msg Message) string {
	switch m := msg.(type) {
	case Version:
		return m.AddrFrom
	case GetBlocks:
		return m.AddrFrom
	case Inv:
		return m.AddrFrom
	case GetData:
		return m.AddrFrom
	case Block:
		return m.AddrFrom
	case Tx:
		return m.AddrFrom
	case Addr:
		return m.AddrFrom
	}

	return ""
}

// =============================================================================

// DeserializationError is returned when a frame or payload is malformed.
// The connection that produced it should be closed.
type DeserializationError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (de *DeserializationError) Error() string {
	if de.Command == "" {
		return fmt.Sprintf("deserialize: %s", de.Err)
	}
	return fmt.Sprintf("deserialize %s: %s", de.Command, de.Err)
}

// Unwrap returns the underlying error.
func (de *DeserializationError) Unwrap() error {
	return de.Err
}

// IsDeserializationError checks if an error of type DeserializationError
// exists.
func IsDeserializationError(err error) bool {
	var de *DeserializationError
	return errors.As(err, &de)
}

// =============================================================================

// Encode writes the message as a single frame.
func Encode(w io.Writer, msg Message) error {
	frame, err := Marshal(msg)
	if err != nil {
		return err
	}

	_, err = w.Write(frame)
	return err
}

// Marshal produces the frame for the message.
func Marshal(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), MaxPayload)
	}

	frame := make([]byte, CommandLength, CommandLength+4+len(payload))
	copy(frame, msg.Command())
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)

	return frame, nil
}

// Decode reads the next frame and returns the message it carries. io.EOF
// is returned when the stream ends cleanly between frames.
func Decode(r io.Reader) (Message, error) {
	var header [CommandLength + 4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &DeserializationError{Err: err}
	}

	cmd := string(bytes.TrimRight(header[:CommandLength], "\x00"))
	size := binary.BigEndian.Uint32(header[CommandLength:])
	if size > MaxPayload {
		return nil, &DeserializationError{Command: cmd, Err: fmt.Errorf("payload of %d bytes exceeds %d", size, MaxPayload)}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &DeserializationError{Command: cmd, Err: err}
	}

	msg, err := unmarshal(cmd, payload)
	if err != nil {
		return nil, &DeserializationError{Command: cmd, Err: err}
	}

	return msg, nil
}

func unmarshal(cmd string, payload []byte) (Message, error) {
	switch cmd {
	case CmdVersion:
		return decodeAs[Version](payload)
	case CmdGetBlocks:
		return decodeAs[GetBlocks](payload)
	case CmdInv:
		return decodeAs[Inv](payload)
	case CmdGetData:
		return decodeAs[GetData](payload)
	case CmdBlock:
		return decodeAs[Block](payload)
	case CmdTx:
		return decodeAs[Tx](payload)
	case CmdAddr:
		return decodeAs[Addr](payload)
	}

	return nil, fmt.Errorf("unknown command %q", cmd)
}

func decodeAs[T Message](payload []byte) (Message, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, err
	}

	return msg, nil
}
