package main

import (
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

// TrainConfig is one configured train's starting position (an addition the
// distilled spec left implicit).
type TrainConfig struct {
	ID        int32  `koanf:"id"`
	StartNode string `koanf:"start_node"`
	Heading   string `koanf:"heading"` // "forward" or "reverse"
}

// Config is the main controller's full runtime configuration, loaded with
// koanf the way services/config's embedded JSON never needed to be
// (that package only ever served one hardcoded device); this one layers a
// config file under environment overrides, matching the file+env split
// koanf is built for.
type Config struct {
	HTTPAddr  string        `koanf:"http_addr"`
	ConsolePort string      `koanf:"console_port"` // "" or "loopback" for the in-memory port
	MarklinPort string      `koanf:"marklin_port"`
	Baud      int           `koanf:"baud"`
	Trains    []TrainConfig `koanf:"trains"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:    ":8088",
		ConsolePort: "loopback",
		MarklinPort: "loopback",
		Baud:        2400,
		Trains: []TrainConfig{
			{ID: 1, StartNode: "SA1", Heading: "forward"},
			{ID: 2, StartNode: "SA4", Heading: "forward"},
		},
	}
}

// loadConfig layers an optional JSON file over the built-in defaults,
// then lets RAILCTL_-prefixed environment variables override either
// (koanf's usual file < env precedence). path == "" skips the file layer
// entirely rather than erroring on a missing default path.
func loadConfig(path string) (Config, error) {
	k := koanf.New(".")
	out := defaultConfig()

	if path != "" {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return out, err
		}
	}

	if err := k.Load(env.Provider("RAILCTL_", ".", envKeyMap), nil); err != nil {
		return out, err
	}

	// Unmarshal on top of the defaults: mapstructure only overwrites keys
	// actually present in k, so an empty file/env layer leaves out alone.
	if err := k.Unmarshal("", &out); err != nil {
		return out, err
	}
	return out, nil
}

// envKeyMap turns RAILCTL_HTTP_ADDR into http_addr so it lines up with the
// struct tags above.
func envKeyMap(s string) string {
	return toLowerUnderscore(s, "RAILCTL_")
}

func toLowerUnderscore(s, prefix string) string {
	s = s[len(prefix):]
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out[i] = c
	}
	return string(out)
}

// startupTimeout bounds how long main waits for the clock service to answer
// Time (waitControllerReady) before giving up and running anyway (the
// teacher main.go's waitHALReady pattern, retargeted at this controller's
// own dependency graph instead of the HAL).
const startupTimeout = 3 * time.Second
