package configx

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gmatch/dictx"
	"gmatch/ext/xlog"
)

type Config struct {
	filename  string    `json:"-"` // current using configuration file name
	timestamp time.Time `json:"-"` // configuration file parse timestamp

	Log  xlog.LogConfig `json:"log"`
	Dict dictx.Dict     `json:"dict"`
}

func ParseConfig(fname string) (*Config, error) {
	return parseConfig(fname)
}

func parseConfig(fname string) (*Config, error) {
	cfg := new(Config)
	fbs, err := os.ReadFile(fname)
	if err != nil {
		return cfg, err
	}
	err = json.Unmarshal(fbs, cfg)
	if err != nil {
		return cfg, err
	}

	cfg.filename = fname
	cfg.timestamp = time.Now()

	if err = cfg.Log.Parse(); err != nil {
		return cfg, err
	}

	if len(cfg.Dict.Sources) == 0 {
		return cfg, fmt.Errorf("no dict sources configured")
	}
	if err = cfg.Dict.Parse(); err != nil {
		return cfg, err
	}

	return cfg, err
}

func (cfg *Config) DumpJson() (string, error) {
	bs, err := json.MarshalIndent(cfg, "", "    ")
	return string(bs), err
}

func (cfg *Config) GetFileName() string {
	return cfg.filename
}

func (cfg *Config) GetTimestamp() time.Time {
	return cfg.timestamp
}
