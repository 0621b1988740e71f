// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package config defines the configuration of a gosift scan.
//
// A Config is loaded once, validated, and then handed out section by section
// to the components that it configures.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/danjacques/gosift/protocol/dns"
	"github.com/danjacques/gosift/scanner"
	"github.com/danjacques/gosift/scanner/compressed"
	"github.com/danjacques/gosift/scanner/dnsscan"
	"github.com/danjacques/gosift/scanner/rfc2822"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Pipeline configures the scanner pipeline.
type Pipeline struct {
	ChunkSize       int      `yaml:"chunk_size"`
	PrefixSize      int      `yaml:"prefix_size"`
	MaxDepth        int      `yaml:"max_depth"`
	MaxDerivedNodes int      `yaml:"max_derived_nodes"`
	Workers         int      `yaml:"workers"`
	Scanners        []string `yaml:"scanners"`
}

// DNS configures the DNS packet scanner.
type DNS struct {
	Ports []int `yaml:"ports"`
	// PointerMode is the name of a dns.PointerMode.
	PointerMode string `yaml:"pointer_mode"`
}

// Mode returns the parsed PointerMode. It is only meaningful for a validated
// config.
func (d *DNS) Mode() dns.PointerMode {
	pm, _ := dns.ParsePointerMode(d.PointerMode)
	return pm
}

// Email configures the RFC2822 scanner.
type Email struct {
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// Containers configures the compressed container scanner.
type Containers struct {
	MaxExpandedSize int64 `yaml:"max_expanded_size"`
}

// Sink configures where extracted rows are written. Empty paths are disabled.
type Sink struct {
	SQLite string `yaml:"sqlite"`
	CBOR   string `yaml:"cbor"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `yaml:"verbosity"`
	File      string `yaml:"file"`
}

// Config is a complete scan configuration.
type Config struct {
	Pipeline   Pipeline   `yaml:"pipeline"`
	DNS        DNS        `yaml:"dns"`
	Email      Email      `yaml:"email"`
	Containers Containers `yaml:"containers"`
	Sink       Sink       `yaml:"sink"`
	Log        Log        `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Pipeline: Pipeline{
			ChunkSize:       scanner.DefaultChunkSize,
			MaxDepth:        scanner.DefaultMaxDepth,
			MaxDerivedNodes: scanner.DefaultMaxDerivedNodes,
			Workers:         1,
		},
		DNS: DNS{
			Ports:       append([]int(nil), dnsscan.DefaultPorts...),
			PointerMode: dns.LegacyPointers.String(),
		},
		Email: Email{
			MaxMessageSize: rfc2822.DefaultMaxMessageSize,
		},
		Containers: Containers{
			MaxExpandedSize: compressed.DefaultMaxExpandedSize,
		},
		Log: Log{
			Verbosity: 5,
		},
	}
}

// Load loads a configuration from the YAML file at path.
//
// Fields that the file does not set keep their default values. Unknown
// fields are an error. The loaded configuration is validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %q", path)
	}
	return cfg, nil
}

// Parse parses a YAML configuration. See Load.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that c is usable.
func (c *Config) Validate() error {
	switch {
	case c.Pipeline.ChunkSize < 0:
		return errors.Errorf("pipeline.chunk_size must not be negative (%d)", c.Pipeline.ChunkSize)
	case c.Pipeline.PrefixSize < 0:
		return errors.Errorf("pipeline.prefix_size must not be negative (%d)", c.Pipeline.PrefixSize)
	case c.Pipeline.MaxDepth < 0:
		return errors.Errorf("pipeline.max_depth must not be negative (%d)", c.Pipeline.MaxDepth)
	case c.Pipeline.MaxDerivedNodes < 0:
		return errors.Errorf("pipeline.max_derived_nodes must not be negative (%d)", c.Pipeline.MaxDerivedNodes)
	case c.Pipeline.Workers < 0:
		return errors.Errorf("pipeline.workers must not be negative (%d)", c.Pipeline.Workers)
	case c.Email.MaxMessageSize < 0:
		return errors.Errorf("email.max_message_size must not be negative (%d)", c.Email.MaxMessageSize)
	case c.Containers.MaxExpandedSize < 0:
		return errors.Errorf("containers.max_expanded_size must not be negative (%d)", c.Containers.MaxExpandedSize)
	}

	for _, port := range c.DNS.Ports {
		if port <= 0 || port > 0xFFFF {
			return errors.Errorf("dns.ports: invalid port %d", port)
		}
	}
	if _, err := dns.ParsePointerMode(c.DNS.PointerMode); err != nil {
		return errors.Wrap(err, "dns.pointer_mode")
	}
	return nil
}

// DNSFactory returns a DNS packet scanner factory configured by c.
func (c *Config) DNSFactory() *dnsscan.Factory {
	f := dnsscan.Factory{
		Ports: append([]int(nil), c.DNS.Ports...),
	}
	f.Decoder.Names.Mode = c.DNS.Mode()
	return &f
}

// EmailFactory returns an RFC2822 scanner factory configured by c.
func (c *Config) EmailFactory() *rfc2822.Factory {
	return &rfc2822.Factory{MaxMessageSize: c.Email.MaxMessageSize}
}

// ContainerFactory returns a compressed container scanner factory configured
// by c.
func (c *Config) ContainerFactory() *compressed.Factory {
	return &compressed.Factory{MaxExpandedSize: c.Containers.MaxExpandedSize}
}

// Apply copies c's pipeline settings into p.
func (c *Config) Apply(p *scanner.Pipeline) {
	p.ChunkSize = c.Pipeline.ChunkSize
	p.PrefixSize = c.Pipeline.PrefixSize
	p.MaxDepth = c.Pipeline.MaxDepth
	p.MaxDerivedNodes = c.Pipeline.MaxDerivedNodes
	p.Workers = c.Pipeline.Workers
}
