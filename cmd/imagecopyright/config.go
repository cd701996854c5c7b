// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/bep/imagecopyright"
)

// config is the TOML configuration of the command.
type config struct {
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`

	Limits struct {
		PayloadSize uint32 `toml:"payload_size"`
	} `toml:"limits"`

	// Preserve selects the values copied to the derivative.
	// Formats left out use the defaults.
	Preserve struct {
		EXIF map[string][]string `toml:"exif"`
		IPTC []string            `toml:"iptc"`
		XMP  map[string][]string `toml:"xmp"`
		PNG  []string            `toml:"png"`
		GIF  []string            `toml:"gif"`
	} `toml:"preserve"`
}

// loadConfig reads the config from filename.
// An empty filename returns the default config.
func loadConfig(filename string) (*config, error) {
	cfg := &config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	if filename == "" {
		return cfg, nil
	}

	md, err := toml.DecodeFile(filename, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", filename, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys in config %q: %v", filename, undecoded)
	}

	return cfg, nil
}

// preserveKeys returns the configured keys, falling back to the defaults per format.
func (c *config) preserveKeys() imagecopyright.PreserveKeys {
	keys := imagecopyright.DefaultPreserveKeys()
	if c.Preserve.EXIF != nil {
		keys.EXIF = c.Preserve.EXIF
	}
	if c.Preserve.IPTC != nil {
		keys.IPTC = c.Preserve.IPTC
	}
	if c.Preserve.XMP != nil {
		keys.XMP = c.Preserve.XMP
	}
	if c.Preserve.PNG != nil {
		keys.PNG = c.Preserve.PNG
	}
	if c.Preserve.GIF != nil {
		keys.GIF = c.Preserve.GIF
	}
	return keys
}
