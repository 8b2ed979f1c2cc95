// Command dronesim runs a single drone node: it wires a command source, an
// event publisher, and the forwarding engine together and runs the drone's
// event loop until interrupted.
//
// Wiring follows the Config-struct-per-component idiom used throughout
// device/ and transport/: each piece is constructed independently and
// handed to the next, rather than one large constructor taking every
// dependency as positional arguments.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/core/packet"
	"github.com/relaymesh/dronecore/device/command"
	"github.com/relaymesh/dronecore/device/drone"
	"github.com/relaymesh/dronecore/device/forwarder"
	"github.com/relaymesh/dronecore/device/telemetry"
	"github.com/relaymesh/dronecore/identity"
	"github.com/relaymesh/dronecore/transport/mqtt"
	"github.com/relaymesh/dronecore/transport/serial"
)

func main() {
	var (
		id          = flag.Uint("id", 1, "this drone's node id")
		pdr         = flag.Float64("pdr", 0, "initial packet drop rate in [0, 1]")
		broker      = flag.String("mqtt-broker", "", "MQTT broker URL for telemetry (optional)")
		commandPort = flag.String("command-port", "", "serial port for controller commands (optional)")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	selfId := mesh.NodeId(*id)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idn, err := identity.New(selfId)
	if err != nil {
		logger.Error("generating node identity", "error", err)
		os.Exit(1)
	}

	events := make(telemetry.ChanSink, 64)

	var publisher *mqtt.EventPublisher
	if *broker != "" {
		publisher = mqtt.New(mqtt.Config{
			Broker:   *broker,
			NodeId:   selfId,
			Identity: idn,
			Logger:   logger,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.Error("starting MQTT publisher", "error", err)
			os.Exit(1)
		}
		defer publisher.Stop()
		go forwardTelemetry(ctx, events, publisher, logger)
	} else {
		go discardTelemetry(ctx, events, logger)
	}

	packets := make(chan *packet.Packet, 64)
	commands := make(chan command.Command, 16)

	d := drone.New(drone.Config{
		Id:       selfId,
		Commands: commands,
		Packets:  packets,
		Events:   events,
		PDR:      *pdr,
		Logger:   logger,
	})

	if *commandPort != "" {
		source := serial.New(serial.Config{Port: *commandPort, Logger: logger})
		if err := source.Start(ctx); err != nil {
			logger.Error("starting serial command source", "error", err)
			os.Exit(1)
		}
		defer source.Stop()
		go relayCommands(ctx, source, commands, map[mesh.NodeId]forwarder.Endpoint{})
	}

	logger.Info("drone starting", "id", selfId, "pdr", *pdr)
	final := d.Run(ctx)
	logger.Info("drone stopped", "state", final)
}

// forwardTelemetry publishes every event the drone emits to the MQTT
// broker, logging (but not failing on) publish errors.
func forwardTelemetry(ctx context.Context, events <-chan telemetry.Event, publisher *mqtt.EventPublisher, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := publisher.Publish(e); err != nil {
				logger.Warn("publishing telemetry event", "kind", e.Kind, "error", err)
			}
		}
	}
}

// discardTelemetry drains the event channel when no publisher is
// configured, so the drone never blocks on a full channel.
func discardTelemetry(ctx context.Context, events <-chan telemetry.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			logger.Debug("telemetry event", "kind", e.Kind, "packet", e.Packet)
		}
	}
}

// relayCommands translates wire commands decoded off the serial link into
// command.Command values, resolving AddSender's neighbor endpoint from a
// locally held topology table since the wire format cannot carry a Go
// channel.
func relayCommands(ctx context.Context, source *serial.CommandSource, out chan<- command.Command, neighbors map[mesh.NodeId]forwarder.Endpoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case wc, ok := <-source.Commands():
			if !ok {
				return
			}
			switch wc.Kind {
			case command.KindSetPacketDropRate:
				out <- command.SetPacketDropRate(wc.PDR)
			case command.KindAddSender:
				out <- command.AddSender(wc.NeighborId, neighbors[wc.NeighborId])
			case command.KindRemoveSender:
				out <- command.RemoveSender(wc.NeighborId)
			case command.KindCrash:
				out <- command.Crash()
			}
		}
	}
}
