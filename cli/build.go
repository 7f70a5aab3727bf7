package cli

import (
	"context"
	"fmt"
	"net"

	"github.com/nats-io/nats.go"
	"github.com/notargets/GeoDecomp/config"
	"github.com/notargets/GeoDecomp/geometry"
	"github.com/notargets/GeoDecomp/logging"
	"github.com/notargets/GeoDecomp/metrics"
	"github.com/notargets/GeoDecomp/partitions"
	"github.com/notargets/GeoDecomp/simulation"
	"github.com/notargets/GeoDecomp/transport"
)

// buildPartition decomposes the configured domain
func buildPartition(cfg *config.Config) (partitions.Partition, error) {
	strategy, err := partitions.ParseStrategy(cfg.Partition.Strategy)
	if err != nil {
		return nil, err
	}
	pb := partitions.PartitionBuilder{
		Strategy:     strategy,
		Origin:       geometry.NewCoord(cfg.Domain.Origin...),
		Dimensions:   geometry.NewExtent(cfg.Domain.Dimensions...),
		Offset:       cfg.Partition.Offset,
		Weights:      cfg.Partition.Weights,
		NumRanks:     cfg.Partition.Ranks,
		MeshFile:     cfg.Partition.MeshFile,
		MaxImbalance: cfg.Partition.MaxImbalance,
	}
	return pb.Build()
}

func topology(cfg *config.Config, p partitions.Partition) geometry.Topology {
	if _, ok := p.(*partitions.MeshPartition); ok {
		return geometry.Cube(1)
	}
	return geometry.NewTopology(cfg.Periodic()...)
}

// adjacency returns the element graph of mesh partitions, nil otherwise
func adjacency(p partitions.Partition) geometry.Adjacency {
	if mp, ok := p.(*partitions.MeshPartition); ok {
		return mp.Adjacency()
	}
	return nil
}

// patchTransport connects the configured transport. The returned options
// add what the simulation needs to route links over it.
func patchTransport(ctx context.Context, cfg *config.Config, logger logging.Logger,
	m metrics.Collector) (transport.Transport, []simulation.Option, func(), error) {
	opts := []transport.Option{
		transport.WithLogger(logging.Component(logger, "transport")),
		transport.WithMetrics(m),
	}
	switch cfg.Transport.Kind {
	case config.TransportNATS:
		nc, err := nats.Connect(cfg.Transport.NATS.URL, nats.Name("geodecomp"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Transport.NATS.URL, err)
		}
		tr := transport.NewNATS(nc, cfg.Transport.NATS.SubjectPrefix, opts...)
		return tr, nil, func() {
			_ = tr.Close()
			_ = nc.Drain()
		}, nil

	case config.TransportJetStream:
		nc, err := nats.Connect(cfg.Transport.NATS.URL, nats.Name("geodecomp"))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting to %s: %w", cfg.Transport.NATS.URL, err)
		}
		tr, err := transport.NewJetStream(ctx, nc, transport.StreamConfig{
			Name:   cfg.Transport.NATS.Stream,
			Prefix: cfg.Transport.NATS.SubjectPrefix,
			MaxAge: cfg.Transport.NATS.MaxAge,
			Purge:  cfg.Transport.NATS.Purge,
		}, opts...)
		if err != nil {
			nc.Close()
			return nil, nil, nil, err
		}
		return tr, nil, func() {
			_ = tr.Close()
			_ = nc.Drain()
		}, nil

	case config.TransportGRPC:
		var lc net.ListenConfig
		lis, err := lc.Listen(ctx, "tcp", cfg.Transport.GRPC.Listen)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("listening on %s: %w", cfg.Transport.GRPC.Listen, err)
		}
		tr := transport.NewGRPC(transport.NewAddressBook(), opts...)
		go func() {
			if err := tr.Serve(lis); err != nil {
				logger.Error("grpc transport stopped", "error", err)
			}
		}()
		self := lis.Addr().String()
		route := simulation.WithRoute(func(link string, target int) {
			addr, ok := cfg.Transport.GRPC.Peers[target]
			if !ok {
				addr = self
			}
			tr.AddressBook().Set(link, addr)
		})
		return tr, []simulation.Option{route}, func() { _ = tr.Close() }, nil

	default:
		tr := transport.NewLocal(opts...)
		return tr, nil, func() { _ = tr.Close() }, nil
	}
}
