// Package config loads the simulation's tunables from a JSON file, the way
// moto's config/setting.go loaded routing rules.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SimConfig holds everything read from setting.json.
type SimConfig struct {
	Log       logConfig  `json:"log"`
	World     world      `json:"world"`
	Bands     []band     `json:"bands"`
	Channel   channel    `json:"channel"`
	ARQ       arq        `json:"arq"`
	Telemetry telemetry  `json:"telemetry"`
	StepsPerS int        `json:"steps_per_sec"`
}

type logConfig struct {
	Level   string `json:"level"`
	Path    string `json:"path"`
	Version string `json:"version"`
}

// world bounds the coordinate space the driver is expected to place towers
// and UEs within. Informational only — the core never clamps positions.
type world struct {
	WidthM  float64 `json:"width_m"`
	HeightM float64 `json:"height_m"`
}

// band describes one of the high/mid/low service tiers.
type band struct {
	Name           string  `json:"name"`
	RangeM         float64 `json:"range_m"`
	ThroughputBps  float64 `json:"throughput_bps"`
}

type channel struct {
	NoiseEnabled bool `json:"noise_enabled"`
}

type arq struct {
	TimeoutTicks int `json:"timeout_ticks"`
	MaxRetx      int `json:"max_retx"`
}

type telemetry struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"`
}

// GlobalCfg is the config currently in effect.
var GlobalCfg *SimConfig

func init() {
	path := os.Getenv("TOWERSIM_CONFIG")
	if path == "" {
		path = "config/setting.json"
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("failed to load setting.json: %s\n", err.Error())
		GlobalCfg = defaults()
		return
	}

	var cfg SimConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		fmt.Printf("failed to load setting.json: %s\n", err.Error())
		GlobalCfg = defaults()
		return
	}

	cfg.fillDefaults()
	GlobalCfg = &cfg
}

// Reload re-reads a config file, fills in defaults, and swaps it in.
func Reload(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cfg SimConfig
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return err
	}
	cfg.fillDefaults()
	GlobalCfg = &cfg
	return nil
}

func defaults() *SimConfig {
	cfg := &SimConfig{}
	cfg.fillDefaults()
	return cfg
}

// fillDefaults mirrors setting.go's verify(): fill in sane defaults for
// anything the config file left zero-valued.
func (c *SimConfig) fillDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Path == "" {
		c.Log.Path = "log/towersim.log"
	}
	if c.World.WidthM == 0 {
		c.World.WidthM = 6000
	}
	if c.World.HeightM == 0 {
		c.World.HeightM = 6000
	}
	if len(c.Bands) == 0 {
		c.Bands = []band{
			{Name: "high", RangeM: 300, ThroughputBps: 1e9},
			{Name: "mid", RangeM: 1500, ThroughputBps: 200e6},
			{Name: "low", RangeM: 5000, ThroughputBps: 50e6},
		}
	}
	if c.ARQ.TimeoutTicks == 0 {
		c.ARQ.TimeoutTicks = 5
	}
	if c.ARQ.MaxRetx == 0 {
		c.ARQ.MaxRetx = 3
	}
	if c.StepsPerS == 0 {
		c.StepsPerS = 2
	}
	if c.Telemetry.Listen == "" {
		c.Telemetry.Listen = "127.0.0.1:9443"
	}
}
