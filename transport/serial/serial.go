// Package serial reads controller commands framed over a serial link and
// decodes them into device/command.Command values (minus any local-only
// payload, such as a neighbor's Go channel endpoint, which a caller must
// attach before applying the command to a drone).
//
// Adapted from the teacher's transport/serial.Transport: the same RS232
// frame assembly loop, the same Fletcher-16-checked frame decode from
// core/codec, and the same Config/Start/Stop/read-loop shape, narrowed to
// inbound-only since a drone's command link has nothing equivalent to
// SendPacket to offer back.
package serial

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"go.bug.st/serial"

	"github.com/relaymesh/dronecore/core/codec"
	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/device/command"
	"github.com/relaymesh/dronecore/transport"
)

var _ transport.Connector = (*CommandSource)(nil)

const (
	// DefaultBaudRate is the default baud rate for the command link.
	DefaultBaudRate = 115200

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024
)

// WireCommand is a command.Command decoded off the wire. NeighborId is set
// for AddSender/RemoveSender; Endpoint is never populated here since a wire
// frame cannot carry a Go channel — a caller must resolve NeighborId to an
// Endpoint (e.g. from its own topology table) before calling command.Apply.
type WireCommand struct {
	Kind       command.Kind
	PDR        float64
	NeighborId mesh.NodeId
}

// Config holds the configuration for a serial command source.
type Config struct {
	// Port is the serial port path (e.g. "/dev/ttyUSB0" or "COM3").
	Port string
	// BaudRate is the serial baud rate. Defaults to 115200.
	BaudRate int
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// CommandSource implements transport.Connector and decodes WireCommands
// from an RS232-framed serial link.
type CommandSource struct {
	cfg       Config
	port      serial.Port
	log       *slog.Logger
	mu        sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	commands     chan WireCommand
	stateHandler transport.StateHandler
}

// New creates a CommandSource with the given configuration.
func New(cfg Config) *CommandSource {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CommandSource{
		cfg:      cfg,
		log:      cfg.Logger.WithGroup("serial"),
		commands: make(chan WireCommand, 16),
	}
}

// Commands returns the channel of decoded commands. Closed once the read
// loop exits.
func (s *CommandSource) Commands() <-chan WireCommand {
	return s.commands
}

// Start opens the serial port and begins decoding commands.
func (s *CommandSource) Start(ctx context.Context) error {
	if s.cfg.Port == "" {
		return errors.New("serial: port is required")
	}

	mode := &serial.Mode{BaudRate: s.cfg.BaudRate}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serial: opening port: %w", err)
	}

	s.mu.Lock()
	s.port = port
	s.connected = true
	s.done = make(chan struct{})
	handler := s.stateHandler
	s.mu.Unlock()

	readCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.readLoop(readCtx)

	s.log.Info("connected to serial command link", "port", s.cfg.Port, "baud", s.cfg.BaudRate)
	if handler != nil {
		handler(transport.EventConnected)
	}
	return nil
}

// Stop closes the serial port and stops the read loop.
func (s *CommandSource) Stop() error {
	s.mu.Lock()
	handler := s.stateHandler
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	s.mu.Lock()
	s.connected = false
	port := s.port
	s.port = nil
	done := s.done
	s.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	if done != nil {
		<-done
	}
	if handler != nil {
		handler(transport.EventDisconnected)
	}
	return err
}

// IsConnected reports whether the serial port is open.
func (s *CommandSource) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// SetStateHandler sets the callback invoked on connection state changes.
func (s *CommandSource) SetStateHandler(fn transport.StateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stateHandler = fn
}

func (s *CommandSource) readLoop(ctx context.Context) {
	defer close(s.done)
	defer close(s.commands)

	buf := make([]byte, readBufSize)
	var assemblyBuf []byte

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				s.handleDisconnect(err)
				return
			}
			s.log.Error("serial read error", "error", err)
			s.handleDisconnect(err)
			return
		}
		if n == 0 {
			continue
		}

		assemblyBuf = append(assemblyBuf, buf[:n]...)
		assemblyBuf = s.processFrames(ctx, assemblyBuf)
	}
}

func (s *CommandSource) processFrames(ctx context.Context, data []byte) []byte {
	for len(data) >= codec.MinFrameSize {
		frame, remaining, err := codec.DecodeRS232Frame(data)
		if err != nil {
			if errors.Is(err, codec.ErrIncompleteFrame) {
				return data
			}
			if idx := findMagic(data[1:]); idx >= 0 {
				data = data[1+idx:]
				continue
			}
			return nil
		}
		data = remaining

		wc, err := decodeWireCommand(frame.Payload)
		if err != nil {
			s.log.Debug("failed to decode command frame", "error", err)
			continue
		}

		select {
		case s.commands <- wc:
		case <-ctx.Done():
			return data
		}
	}
	return data
}

// decodeWireCommand parses the RS232 frame payload produced by the
// controller. Layout: [kind: 1 byte][pdr: 8 bytes big-endian float64
// bits][neighbor_id: 2 bytes big-endian], with trailing fields unused for
// kinds that don't need them.
func decodeWireCommand(payload []byte) (WireCommand, error) {
	if len(payload) < 11 {
		return WireCommand{}, fmt.Errorf("serial: command frame too short: %d bytes", len(payload))
	}
	kind := command.Kind(payload[0])
	pdrBits := binary.BigEndian.Uint64(payload[1:9])
	neighborId := mesh.NodeId(binary.BigEndian.Uint16(payload[9:11]))

	switch kind {
	case command.KindSetPacketDropRate, command.KindAddSender, command.KindRemoveSender, command.KindCrash:
	default:
		return WireCommand{}, fmt.Errorf("serial: unknown command kind %d", kind)
	}

	return WireCommand{
		Kind:       kind,
		PDR:        math.Float64frombits(pdrBits),
		NeighborId: neighborId,
	}, nil
}

// findMagic searches for the RS232 magic bytes in data.
func findMagic(data []byte) int {
	magic := [2]byte{byte(codec.BridgePacketMagic >> 8), byte(codec.BridgePacketMagic & 0xFF)}
	for i := 0; i+1 < len(data); i++ {
		if data[i] == magic[0] && data[i+1] == magic[1] {
			return i
		}
	}
	return -1
}

func (s *CommandSource) handleDisconnect(err error) {
	s.mu.Lock()
	s.connected = false
	handler := s.stateHandler
	s.mu.Unlock()

	if err != nil {
		s.log.Error("serial disconnected", "error", err)
	}
	if handler != nil {
		handler(transport.EventDisconnected)
	}
}
