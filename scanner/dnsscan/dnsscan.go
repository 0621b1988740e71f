// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dnsscan extracts DNS resolutions from packet captures.
//
// Each captured packet is decoded down to its UDP layer. Datagrams to or from
// a DNS port are decoded as DNS messages, and every name-to-address
// resolution that they assert is recorded in the "dns" table.
package dnsscan

import (
	"context"

	"github.com/danjacques/gosift/protocol/dns"
	"github.com/danjacques/gosift/protocol/pcapfile"
	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/typescan"
	"github.com/danjacques/gosift/sink"
	"github.com/danjacques/gosift/support/fmtutil"
	"github.com/danjacques/gosift/vfs"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// Name is the name of the scanner.
const Name = "DNS"

// DefaultPorts are the UDP ports whose datagrams are decoded by default.
var DefaultPorts = []int{53}

// Factory is the DNS scanner.Factory.
//
// A Factory must not be modified once it has created a scan.
type Factory struct {
	// Ports are the UDP ports whose datagrams are decoded. If empty,
	// DefaultPorts is used.
	Ports []int

	// Decoder decodes DNS messages.
	Decoder dns.Decoder

	// MaxRecordSize bounds the captured length of a single packet. If <= 0,
	// pcapfile.DefaultMaxRecordSize is used.
	MaxRecordSize int
}

var _ scanner.Factory = (*Factory)(nil)

// Descriptor implements scanner.Factory.
func (f *Factory) Descriptor() scanner.Descriptor {
	return scanner.Descriptor{
		Name:    Name,
		Types:   []string{`application/vnd\.tcpdump\.pcap`},
		Depends: []string{typescan.Name},
		Default: true,
		Group:   "Network",
	}
}

// NewScan implements scanner.Factory.
func (f *Factory) NewScan(env *scanner.Env) scanner.Scan {
	ports := f.Ports
	if len(ports) == 0 {
		ports = DefaultPorts
	}
	s := scan{
		f:     f,
		env:   env,
		ports: make(map[layers.UDPPort]struct{}, len(ports)),
		framer: pcapfile.Framer{
			MaxRecordSize: f.MaxRecordSize,
		},
	}
	for _, p := range ports {
		s.ports[layers.UDPPort(p)] = struct{}{}
	}
	return &s
}

type scan struct {
	f     *Factory
	env   *scanner.Env
	ports map[layers.UDPPort]struct{}

	framer  pcapfile.Framer
	decoder gopacket.Decoder

	resolutions int
}

func (s *scan) Boring(prefix []byte) bool {
	if _, err := pcapfile.ParseHeader(prefix); err != nil {
		s.env.Logger.Debugf("%s does not have a capture header: %s", s.env.Node.Inode, err)
		return true
	}
	return false
}

func (s *scan) Process(chunk []byte) error {
	_, _ = s.framer.Write(chunk)
	for {
		rec, ok, err := s.framer.Next()
		if err != nil {
			return errors.Wrapf(scanner.ErrMalformed, "framing packet %d: %s", s.framer.Count(), err)
		}
		if !ok {
			return nil
		}
		s.handle(s.framer.Count()-1, &rec)
	}
}

func (s *scan) Finish(ctx context.Context) ([]*vfs.Node, error) {
	if s.framer.Header() == nil {
		return nil, errors.Wrap(scanner.ErrMalformed, "truncated capture header")
	}
	if rem := s.framer.Remaining(); rem > 0 {
		s.env.Logger.Debugf("%s ends with %d byte(s) of a truncated packet.", s.env.Node.Inode, rem)
	}
	s.env.Logger.Debugf("%s: recorded %d resolution(s) from %d packet(s).",
		s.env.Node.Inode, s.resolutions, s.framer.Count())
	return nil, nil
}

// handle decodes the packet in rec, recording the resolutions of any DNS
// message that it carries.
//
// Packets that cannot be decoded are logged and skipped.
func (s *scan) handle(id int64, rec *pcapfile.Record) {
	if s.decoder == nil {
		s.decoder = layers.LinkType(s.framer.Header().LinkType)
	}

	pkt := gopacket.NewPacket(rec.Data, s.decoder, gopacket.DecodeOptions{
		Lazy:   true,
		NoCopy: true,
	})
	udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		packetsSeen.WithLabelValues("not_udp").Inc()
		return
	}
	if !s.isDNSPort(udp.SrcPort) && !s.isDNSPort(udp.DstPort) {
		packetsSeen.WithLabelValues("other_port").Inc()
		return
	}

	m, err := s.f.Decoder.Decode(udp.Payload)
	if err != nil {
		packetsSeen.WithLabelValues("malformed").Inc()
		s.env.Logger.Debugf("%s packet %d is not a DNS message: %s\n%s", s.env.Node.Inode, id, err,
			fmtutil.Hex{Data: udp.Payload, Max: 64})
		return
	}
	packetsSeen.WithLabelValues("dns").Inc()

	for _, r := range dns.Resolve(m) {
		s.env.Record(sink.TableDNS, sink.Row{
			"inode":     string(s.env.Node.Inode),
			"packet_id": id,
			"name":      r.Name,
			"ip_addr":   dns.IPToUint32(r.IP),
		})
		s.resolutions++
		resolutionsFound.Inc()
	}
}

func (s *scan) isDNSPort(p layers.UDPPort) bool {
	_, ok := s.ports[p]
	return ok
}
