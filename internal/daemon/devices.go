package daemon

import (
	"encoding/binary"
	"fmt"
	"net"

	"firestige.xyz/hsprobe/internal/config"
	"firestige.xyz/hsprobe/internal/ipfix"
	"firestige.xyz/hsprobe/internal/log"
	"firestige.xyz/hsprobe/internal/probe"
	"firestige.xyz/hsprobe/internal/source"
	"firestige.xyz/hsprobe/internal/source/afpacket"
	"firestige.xyz/hsprobe/internal/source/pcap"
	"firestige.xyz/hsprobe/internal/source/socket"
)

// opener opens the capture source of one configured device.
type opener func(dc config.DeviceConfig, cfg *config.ProbeConfig) (source.Source, error)

var openers = map[string]opener{
	config.DeviceLive: func(dc config.DeviceConfig, cfg *config.ProbeConfig) (source.Source, error) {
		return pcap.OpenLive(dc.Name, cfg.SnapLength, cfg.Promiscuous)
	},
	config.DeviceAFPacket: func(dc config.DeviceConfig, cfg *config.ProbeConfig) (source.Source, error) {
		opts, err := afpacket.ParseOptions(dc.Options)
		if err != nil {
			return nil, err
		}
		return afpacket.Open(dc.Name, cfg.SnapLength, opts)
	},
	config.DeviceFile: func(dc config.DeviceConfig, _ *config.ProbeConfig) (source.Source, error) {
		return pcap.OpenOffline(dc.Name)
	},
	config.DeviceInetSocket: func(dc config.DeviceConfig, cfg *config.ProbeConfig) (source.Source, error) {
		return socket.ListenInet(dc.Name, cfg.SnapLength)
	},
	config.DeviceUnixSocket: func(dc config.DeviceConfig, cfg *config.ProbeConfig) (source.Source, error) {
		return socket.ListenUnix(dc.Name, cfg.SnapLength)
	},
}

// openDevices opens every configured source and its exporter. On failure everything
// opened so far is closed again.
func openDevices(cfg *config.ProbeConfig) (specs []probe.DeviceSpec, err error) {
	defer func() {
		if err != nil {
			closeDevices(specs)
			specs = nil
		}
	}()

	var firstIP net.IP
	if cfg.Export.OIDFromFirstInterface {
		if firstIP = firstInterfaceIPv4(); firstIP == nil {
			log.GetLogger().Warn("oid_from_first_interface set but no interface has an IPv4 address")
		}
	}

	for i, dc := range cfg.Devices {
		open, ok := openers[dc.Type]
		if !ok {
			return specs, fmt.Errorf("devices[%d]: unsupported type %q", i, dc.Type)
		}
		tmpl, err := probe.DeviceTemplate(dc.Template)
		if err != nil {
			return specs, fmt.Errorf("devices[%d].template: %w", i, err)
		}

		src, err := open(dc, cfg)
		if err != nil {
			return specs, fmt.Errorf("devices[%d]: %w", i, err)
		}
		spec := probe.DeviceSpec{Name: dc.Name, Source: src, Template: tmpl}
		if src.Kind() == source.Live {
			spec.IPv4 = interfaceIPv4(dc.Name)
		}

		odid := observationDomainID(cfg.Export.ObservationDomainID, firstIP, spec.IPv4)
		exp, err := ipfix.New(exporterConfig(cfg.Export), odid)
		if err != nil {
			src.Close()
			return specs, fmt.Errorf("devices[%d]: exporter: %w", i, err)
		}
		spec.Exporter = exp
		specs = append(specs, spec)

		log.GetLogger().WithFields(map[string]interface{}{
			"device":    dc.Name,
			"type":      dc.Type,
			"address":   spec.IPv4,
			"odid":      odid,
			"transport": cfg.Export.Transport,
		}).Info("device opened")
	}
	return specs, nil
}

func closeDevices(specs []probe.DeviceSpec) {
	for _, s := range specs {
		if s.Exporter != nil {
			s.Exporter.Close()
		}
		if s.Source != nil {
			s.Source.Close()
		}
	}
}

func exporterConfig(ex config.ExportConfig) ipfix.Config {
	return ipfix.Config{
		Transport: ex.Transport,
		Collector: ex.Collector,
		Kafka: ipfix.KafkaConfig{
			Brokers:      ex.Kafka.Brokers,
			Topic:        ex.Kafka.Topic,
			BatchTimeout: ex.Kafka.BatchTimeout,
			Compression:  ex.Kafka.Compression,
		},
		MaxMessageSize:  ex.MaxMessageSize,
		TemplateRefresh: ex.TemplateRefresh,
		DialTimeout:     ex.DialTimeout,
	}
}

// observationDomainID picks the configured id, else the first interface address when
// requested, else the device address. Zero when none is known.
func observationDomainID(configured uint32, firstIP, deviceIP net.IP) uint32 {
	if configured != 0 {
		return configured
	}
	for _, ip := range []net.IP{firstIP, deviceIP} {
		if ip4 := ip.To4(); ip4 != nil {
			return binary.BigEndian.Uint32(ip4)
		}
	}
	return 0
}

// interfaceIPv4 returns the first IPv4 address of the named interface.
func interfaceIPv4(name string) net.IP {
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		log.GetLogger().WithError(err).WithField("device", name).Debug("interface address unavailable")
		return nil
	}
	return ipv4Of(ifi)
}

// firstInterfaceIPv4 returns the first IPv4 address of the first non-loopback
// interface that is up.
func firstInterfaceIPv4() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ip := ipv4Of(ifi); ip != nil {
			return ip
		}
	}
	return nil
}

func ipv4Of(ifi *net.Interface) net.IP {
	addrs, err := ifi.Addrs()
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok {
			if ip4 := ipn.IP.To4(); ip4 != nil {
				return ip4
			}
		}
	}
	return nil
}
