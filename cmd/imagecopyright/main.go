// Copyright 2026 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command imagecopyright copies attribution metadata from a source image to a derivative.
//
// Usage:
//
//	imagecopyright [flags] <source>
//	imagecopyright [flags] <source> <derivative> <output>
//
// With one argument, the metadata of source is printed as JSON.
// With three, the metadata of source is applied to derivative and written to output.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bep/imagecopyright"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("imagecopyright failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("imagecopyright", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: imagecopyright [flags] <source> [<derivative> <output>]\n\n")
		fs.PrintDefaults()
	}

	configFile := fs.String("config", "", "TOML config file")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	codec := imagecopyright.New(imagecopyright.Options{
		Warnf: func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		},
		LimitPayloadSize: cfg.Limits.PayloadSize,
	})

	switch fs.NArg() {
	case 1:
		return dump(codec, fs.Arg(0), stdout)
	case 3:
		return apply(codec, logger, cfg.preserveKeys(), fs.Arg(0), fs.Arg(1), fs.Arg(2))
	default:
		fs.Usage()
		return errors.New("expected 1 or 3 arguments")
	}
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// dump prints the metadata of filename as JSON, keyed by format.
func dump(codec *imagecopyright.Codec, filename string, w io.Writer) error {
	m, err := codec.ParseFile(filename)
	if err != nil {
		return err
	}

	out := make(map[string]any)
	for _, f := range imagecopyright.Formats {
		if p, ok := m.Get(f); ok {
			out[f.String()] = p
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// apply writes derivative with the metadata of source applied to output.
// The output is written to a temporary file first and renamed when complete.
func apply(codec *imagecopyright.Codec, logger *slog.Logger, keys imagecopyright.PreserveKeys, source, derivative, output string) error {
	m, err := codec.ParseFile(source)
	if err != nil {
		return fmt.Errorf("parse %q: %w", source, err)
	}
	if m.IsEmpty() {
		logger.Info("no metadata found in source", "source", source)
	}

	in, err := os.Open(derivative)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(output), ".imagecopyright-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := codec.ApplyCopyrightToStream(in, tmp, m, keys); err != nil {
		tmp.Close()
		return fmt.Errorf("apply to %q: %w", derivative, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return err
	}

	logger.Info("applied metadata", "source", source, "derivative", derivative, "output", output)
	return nil
}
