// Copyright (c) 2026 The regprobe authors. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Device DeviceConfig `mapstructure:"device"`
	Host   HostConfig   `mapstructure:"host"`
	Export ExportConfig `mapstructure:"export"`
	Log    LogConfig    `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// DeviceConfig defines the simulated device (slave role)
type DeviceConfig struct {
	Identity  int            `mapstructure:"identity"`   // Device address / Modbus unit id (1-247)
	ErrorMode string         `mapstructure:"error_mode"` // none, invalid-function, invalid-address, invalid-value, internal-error
	Registers RegisterConfig `mapstructure:"registers"`
	ModbusTCP TcpConfig      `mapstructure:"modbus_tcp"` // Modbus TCP listener; empty address disables
	Serial    SerialConfig   `mapstructure:"serial"`     // Custom-protocol serial port; empty device disables
}

// RegisterConfig defines the register map
type RegisterConfig struct {
	Size        int               `mapstructure:"size"`         // Number of 16-bit registers
	LoadPattern bool              `mapstructure:"load_pattern"` // Preload the channel test pattern
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines register storage settings
type PersistenceConfig struct {
	Type   string `mapstructure:"type"`   // "memory", "file", "mmap", "sql"
	Path   string `mapstructure:"path"`   // File path, or DSN for "sql"
	Driver string `mapstructure:"driver"` // SQL driver name, e.g. "sqlite3"
}

// HostConfig defines the master role: poll a remote Modbus slave and mirror
// its registers into the local store.
type HostConfig struct {
	Target       TcpConfig     `mapstructure:"target"` // Remote slave; empty address disables
	UnitID       int           `mapstructure:"unit_id"`
	Timeout      time.Duration `mapstructure:"timeout"`       // Per-transaction timeout
	PollInterval time.Duration `mapstructure:"poll_interval"` // Pause between polls
	StartAddress int           `mapstructure:"start_address"`
	Count        int           `mapstructure:"count"`
	KeyStrategy  string        `mapstructure:"key_strategy"` // "sequential" or "caller"
}

// ExportConfig defines periodic CSV export of the register map
type ExportConfig struct {
	Path     string        `mapstructure:"path"` // Empty disables
	Interval time.Duration `mapstructure:"interval"`
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:502" or "192.168.1.100:502"
}

// SerialConfig defines serial port settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"` // Read poll timeout
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/regprobe/")
		v.AddConfigPath("$HOME/.regprobe")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("device.identity", 1)
	v.SetDefault("device.registers.size", 1000)
	v.SetDefault("device.registers.persistence.type", "memory")
	v.SetDefault("device.registers.persistence.driver", "sqlite3")
	v.SetDefault("device.error_mode", "none")
	v.SetDefault("host.unit_id", 1)
	v.SetDefault("host.timeout", 2*time.Second)
	v.SetDefault("host.poll_interval", time.Second)
	v.SetDefault("host.count", 1)
	v.SetDefault("host.key_strategy", "sequential")
	v.SetDefault("export.interval", 5*time.Second)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	fixupSerial(&config.Device.Serial)
	if config.Device.Identity < 1 || config.Device.Identity > 247 {
		return nil, fmt.Errorf("device identity %d out of range 1-247", config.Device.Identity)
	}
	if config.Device.Registers.Size < 1 || config.Device.Registers.Size > 65536 {
		return nil, fmt.Errorf("register map size %d out of range 1-65536", config.Device.Registers.Size)
	}
	switch config.Host.KeyStrategy {
	case "sequential", "caller":
	default:
		return nil, fmt.Errorf("unknown key strategy %q", config.Host.KeyStrategy)
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.BaudRate == 0 {
		s.BaudRate = 115200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
}
