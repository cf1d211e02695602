package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"matrixlink/device"
	"matrixlink/protocol"
)

// Config is the TOML configuration shared by matrix-host and the device target
type Config struct {
	Serial    SerialConfig    `toml:"serial"`
	Codec     CodecConfig     `toml:"codec"`
	Link      LinkConfig      `toml:"link"`
	Log       LogConfig       `toml:"log"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Indicator IndicatorConfig `toml:"indicator"`
	Display   DisplayConfig   `toml:"display"`
}

// SerialConfig selects the serial device
type SerialConfig struct {
	Device        string `toml:"device"`
	Baud          int    `toml:"baud"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
}

// CodecConfig describes the wire layout. Both ends must agree on it
type CodecConfig struct {
	Base             string `toml:"base"` // "decimal" or "hex"
	Checksum         bool   `toml:"checksum"`
	BlockSize        int    `toml:"block_size"`
	Trailer          string `toml:"trailer"` // "hex" or "binary"
	SegmentPixels    int    `toml:"segment_pixels"`
	SegmentBlockSize int    `toml:"segment_block_size"`
	Format           string `toml:"format"` // device line format: auto, records, segments
}

// LinkConfig controls host-side transmission
type LinkConfig struct {
	Mode         string `toml:"mode"` // rows, full, segments
	AwaitReplies bool   `toml:"await_replies"`
	ReplyTimeout string `toml:"reply_timeout"`
	Retries      int    `toml:"retries"`
}

// LogConfig mirrors logging.Options
type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp bool   `toml:"timestamp"`
	NoColor   bool   `toml:"no_color"`
}

// SnapshotConfig controls persistence of the device matrix
type SnapshotConfig struct {
	Path  string `toml:"path"` // empty disables snapshots
	Level string `toml:"level"`
}

// IndicatorConfig selects the GPIO line lit on link errors
type IndicatorConfig struct {
	Chip      string `toml:"chip"` // empty disables the indicator
	Line      int    `toml:"line"`
	ActiveLow bool   `toml:"active_low"`
	Hold      string `toml:"hold"`
}

// DisplayConfig controls the terminal preview on the device
type DisplayConfig struct {
	Terminal bool `toml:"terminal"`
	Home     bool `toml:"home"`
	Plain    bool `toml:"plain"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Device:        "/dev/rfcomm0",
			Baud:          9600,
			ReadTimeoutMS: 100,
		},
		Codec: CodecConfig{
			Base:             "hex",
			Checksum:         true,
			BlockSize:        protocol.DefaultBlockSize,
			Trailer:          "hex",
			SegmentPixels:    protocol.DefaultSegmentSize,
			SegmentBlockSize: protocol.DefaultBlockSize,
			Format:           "auto",
		},
		Link: LinkConfig{
			Mode:         "rows",
			AwaitReplies: true,
			ReplyTimeout: "2s",
			Retries:      3,
		},
		Log: LogConfig{
			Level:     "info",
			Timestamp: true,
		},
		Snapshot: SnapshotConfig{
			Level: "default",
		},
		Indicator: IndicatorConfig{
			Hold: "500ms",
		},
		Display: DisplayConfig{
			Terminal: true,
			Home:     true,
		},
	}
}

// LoadConfig parses TOML on top of DefaultConfig. Unknown keys are an error
func LoadConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	meta, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys %s", strings.Join(keys, ", "))
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses a TOML file
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := LoadConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// applyDefaults fills in values a file set to zero or left empty
func applyDefaults(cfg *Config) {
	def := DefaultConfig()

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = def.Serial.Baud
	}
	if cfg.Codec.Base == "" {
		cfg.Codec.Base = def.Codec.Base
	}
	if cfg.Codec.BlockSize == 0 {
		cfg.Codec.BlockSize = def.Codec.BlockSize
	}
	if cfg.Codec.Trailer == "" {
		cfg.Codec.Trailer = def.Codec.Trailer
	}
	if cfg.Codec.SegmentPixels == 0 {
		cfg.Codec.SegmentPixels = def.Codec.SegmentPixels
	}
	if cfg.Codec.SegmentBlockSize == 0 {
		cfg.Codec.SegmentBlockSize = def.Codec.SegmentBlockSize
	}
	if cfg.Link.ReplyTimeout == "" {
		cfg.Link.ReplyTimeout = def.Link.ReplyTimeout
	}
	if cfg.Link.Retries < 0 {
		cfg.Link.Retries = 0
	}
	if cfg.Snapshot.Level == "" {
		cfg.Snapshot.Level = def.Snapshot.Level
	}
	if cfg.Indicator.Hold == "" {
		cfg.Indicator.Hold = def.Indicator.Hold
	}
}

// Validate checks that every value can be turned into its runtime form
func (c *Config) Validate() error {
	if _, err := c.RecordCodec(); err != nil {
		return fmt.Errorf("config: codec: %w", err)
	}
	if err := c.SegmentCodec().Validate(); err != nil {
		return fmt.Errorf("config: segments: %w", err)
	}
	if _, err := device.ParseFormat(c.Codec.Format); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.ReplyTimeout(); err != nil {
		return err
	}
	if _, err := c.IndicatorHold(); err != nil {
		return err
	}
	return nil
}

// RecordCodec builds the record codec described by the codec section
func (c *Config) RecordCodec() (protocol.RecordCodec, error) {
	base, err := protocol.ParseBase(c.Codec.Base)
	if err != nil {
		return protocol.RecordCodec{}, err
	}
	trailer, err := protocol.ParseTrailer(c.Codec.Trailer)
	if err != nil {
		return protocol.RecordCodec{}, err
	}
	codec := protocol.RecordCodec{
		Base:      base,
		Checksum:  c.Codec.Checksum,
		BlockSize: c.Codec.BlockSize,
		Trailer:   trailer,
	}
	return codec, codec.Validate()
}

// SegmentCodec builds the packed segment codec
func (c *Config) SegmentCodec() protocol.SegmentCodec {
	return protocol.SegmentCodec{
		Pixels:    c.Codec.SegmentPixels,
		BlockSize: c.Codec.SegmentBlockSize,
	}
}

// ReplyTimeout parses link.reply_timeout
func (c *Config) ReplyTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Link.ReplyTimeout))
	if err != nil {
		return 0, fmt.Errorf("config: parse reply_timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: reply_timeout must be positive, got %v", d)
	}
	return d, nil
}

// IndicatorHold parses indicator.hold
func (c *Config) IndicatorHold() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.Indicator.Hold))
	if err != nil {
		return 0, fmt.Errorf("config: parse indicator hold: %w", err)
	}
	return d, nil
}
