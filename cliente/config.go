// config.go - Client configuration: defaults, Lua file, environment, flags
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	lua "github.com/yuin/gopher-lua"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds everything the client needs to start a game.
type Config struct {
	Server     string        // move authority base URL (http, https, ws or wss)
	Player     string        // display name, also the token subject
	Timeout    time.Duration // per call
	MaxRetries int           // attempts for the legal-move query
	RetryDelay time.Duration
	LogFile    string // "" discards the log
	AuthSecret string // HS256 secret for bearer tokens; "" sends none
	ConfigFile string
}

func DefaultConfig() Config {
	return Config{
		Server:     "http://127.0.0.1:5000",
		Player:     "player",
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Second,
		LogFile:    "damas.log",
	}
}

// LoadConfig builds the configuration from, lowest precedence first:
// defaults, the Lua file named by -config or DAMAS_CONFIG, DAMAS_*
// environment variables, flags, and the positional <server> <player>.
func LoadConfig(args []string, getenv func(string) string, usage io.Writer) (Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("damas", flag.ContinueOnError)
	fs.SetOutput(usage)
	configFile := fs.String("config", "", "Lua configuration file")
	server := fs.String("server", "", "move authority URL (http://, https://, ws://, wss://)")
	player := fs.String("player", "", "player name")
	timeout := fs.Duration("timeout", 0, "timeout per authority call")
	retries := fs.Int("retries", 0, "attempts for the legal-move query")
	retryDelay := fs.Duration("retry-delay", 0, "pause between attempts")
	logFile := fs.String("log", "", `log file ("" discards the log)`)
	secret := fs.String("auth-secret", "", "secret used to sign bearer tokens")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Uso: %s [flags] [<servidor> <nome_do_jogador>]\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.ConfigFile = getenv("DAMAS_CONFIG")
	if *configFile != "" {
		cfg.ConfigFile = *configFile
	}
	if cfg.ConfigFile != "" {
		if err := loadLuaConfig(cfg.ConfigFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *server
		case "player":
			cfg.Player = *player
		case "timeout":
			cfg.Timeout = *timeout
		case "retries":
			cfg.MaxRetries = *retries
		case "retry-delay":
			cfg.RetryDelay = *retryDelay
		case "log":
			cfg.LogFile = *logFile
		case "auth-secret":
			cfg.AuthSecret = *secret
		}
	})

	switch rest := fs.Args(); len(rest) {
	case 0:
	case 2:
		cfg.Server, cfg.Player = rest[0], rest[1]
	default:
		return Config{}, fmt.Errorf("%w: want <servidor> <nome_do_jogador>, got %d arguments", ErrInvalidConfig, len(rest))
	}

	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("DAMAS_SERVER"); v != "" {
		cfg.Server = v
	}
	if v := getenv("DAMAS_PLAYER"); v != "" {
		cfg.Player = v
	}
	if v := getenv("DAMAS_AUTH_SECRET"); v != "" {
		cfg.AuthSecret = v
	}
	if v := getenv("DAMAS_LOG"); v != "" {
		cfg.LogFile = v
	}
	if v := getenv("DAMAS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: DAMAS_TIMEOUT: %v", ErrInvalidConfig, err)
		}
		cfg.Timeout = d
	}
	if v := getenv("DAMAS_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: DAMAS_RETRIES: %v", ErrInvalidConfig, err)
		}
		cfg.MaxRetries = n
	}
	return nil
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("%w: server %q: %v", ErrInvalidConfig, c.Server, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("%w: server %q: scheme must be http, https, ws or wss", ErrInvalidConfig, c.Server)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: server %q has no host", ErrInvalidConfig, c.Server)
	}
	if c.Player == "" {
		return fmt.Errorf("%w: empty player name", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: retries must be at least 1", ErrInvalidConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: negative retry delay", ErrInvalidConfig)
	}
	return nil
}

// loadLuaConfig runs the file and reads its globals:
//
//	server = "ws://localhost:5000/ws"
//	player = "ana"
//	timeout_ms = 5000
//	fetch_retries = 3
//	retry_delay_ms = 500
//	log_file = "damas.log"
//	auth_secret = "..."
func loadLuaConfig(path string, cfg *Config) error {
	L := lua.NewState()
	defer L.Close()
	if err := L.DoFile(path); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	stringGlobals := map[string]*string{
		"server":      &cfg.Server,
		"player":      &cfg.Player,
		"log_file":    &cfg.LogFile,
		"auth_secret": &cfg.AuthSecret,
	}
	for name, dst := range stringGlobals {
		switch v := L.GetGlobal(name).(type) {
		case *lua.LNilType:
		case lua.LString:
			*dst = string(v)
		default:
			return fmt.Errorf("%w: %s: %s must be a string, got %s", ErrInvalidConfig, path, name, v.Type())
		}
	}

	millis := map[string]*time.Duration{
		"timeout_ms":     &cfg.Timeout,
		"retry_delay_ms": &cfg.RetryDelay,
	}
	for name, dst := range millis {
		n, ok, err := luaNumber(L, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		if ok {
			*dst = time.Duration(n * float64(time.Millisecond))
		}
	}

	n, ok, err := luaNumber(L, "fetch_retries")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if ok {
		cfg.MaxRetries = int(n)
	}
	return nil
}

func luaNumber(L *lua.LState, name string) (float64, bool, error) {
	switch v := L.GetGlobal(name).(type) {
	case *lua.LNilType:
		return 0, false, nil
	case lua.LNumber:
		return float64(v), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be a number, got %s", name, v.Type())
	}
}
