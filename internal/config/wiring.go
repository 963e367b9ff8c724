package config

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"leasesign/internal/checkpoint"
	"leasesign/internal/gateway"
	"leasesign/internal/logging"
	"leasesign/internal/signing"
	"leasesign/internal/stroke"
)

// CheckpointOptions describes the configured checkpoint store.
func (c *Config) CheckpointOptions() checkpoint.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return checkpoint.Options{
		Backend: c.Checkpoint.Backend,
		Path:    c.Checkpoint.Path,
		Redis: checkpoint.RedisOptions{
			Addr: c.Checkpoint.RedisAddr,
			DB:   c.Checkpoint.RedisDB,
		},
	}
}

// CheckpointTTL is how long saved progress stays valid.
func (c *Config) CheckpointTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Checkpoint.TTLHours <= 0 {
		return checkpoint.DefaultTTL
	}
	return time.Duration(c.Checkpoint.TTLHours) * time.Hour
}

// GatewayOptions returns the client options for the configured service.
func (c *Config) GatewayOptions() []gateway.Option {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts := []gateway.Option{
		gateway.WithTimeout(time.Duration(c.Service.TimeoutSec) * time.Second),
		gateway.WithSubmitRate(c.Service.SubmitRatePerSec, c.Service.SubmitBurst),
	}
	if c.Service.BearerToken != "" {
		opts = append(opts, gateway.WithBearerToken(c.Service.BearerToken))
	}
	return opts
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() (*logging.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lc := logging.DefaultConfig()
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	lc.Format = format
	lc.Output = c.Logging.Output
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	return lc, nil
}

// StrokeStyle is the configured pen.
func (c *Config) StrokeStyle() (stroke.Style, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, err := parseHexColor(c.Signing.StrokeColor)
	if err != nil {
		return stroke.Style{}, err
	}
	width := c.Signing.StrokeWidth
	if width <= 0 {
		width = stroke.DefaultStyle.Width
	}
	return stroke.Style{Color: col, Width: width}, nil
}

// SigningOptions returns shell options for the signing section. ratio is
// the display's pixel ratio; pass 1 when rendering off screen.
func (c *Config) SigningOptions(ratio float32) ([]signing.Option, error) {
	style, err := c.StrokeStyle()
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.Signing
	opts := []signing.Option{
		signing.WithPadStyle(style),
		signing.WithPadSize(float32(s.PadWidth), float32(s.PadHeight), ratio),
		signing.WithActiveThreshold(s.ActiveSectionThreshold),
		signing.WithScrollOffset(s.ScrollOffset),
	}
	if s.AutoDate {
		opts = append(opts, signing.WithAutoDate(s.DateFormat))
	}
	return opts, nil
}

// parseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func parseHexColor(s string) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
