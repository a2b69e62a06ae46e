// Package config provides Viper-based configuration loading for the totembot host.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// Outputs are zap sink URLs or paths; empty means stderr.
	Outputs []string `mapstructure:"outputs"`
}

// RoutineConfig tunes the combat routine. Zero values fall back to the
// routine's built-in defaults.
type RoutineConfig struct {
	// Engagement is "melee" or "ranged": the sight line the agent needs.
	Engagement string `mapstructure:"engagement"`
	// MaxRange is the distance beyond which the agent closes in.
	MaxRange float64 `mapstructure:"max_range"`

	TotemSpell        string        `mapstructure:"totem_spell"`
	TotemMinDistance  float64       `mapstructure:"totem_min_distance"`
	TotemSafetyMargin time.Duration `mapstructure:"totem_safety_margin"`

	FlaskCooldown time.Duration `mapstructure:"flask_cooldown"`
	LifeThreshold float64       `mapstructure:"life_threshold"`
	ManaThreshold float64       `mapstructure:"mana_threshold"`

	TrapSpell  string  `mapstructure:"trap_spell"`
	TrapRadius float64 `mapstructure:"trap_radius"`
	TrapCount  int     `mapstructure:"trap_count"`

	DebuffSpell string  `mapstructure:"debuff_spell"`
	DebuffAura  string  `mapstructure:"debuff_aura"`
	DebuffRange float64 `mapstructure:"debuff_range"`

	FallbackSpell string `mapstructure:"fallback_spell"`

	// CurseRadius and CurseCount define a "cluster" for default curse eligibility.
	CurseRadius float64 `mapstructure:"curse_radius"`
	CurseCount  int     `mapstructure:"curse_count"`
}

// ContentConfig locates the curse catalog and its Lua hooks.
type ContentConfig struct {
	// CurseDir holds the curse catalog *.yaml files.
	CurseDir string `mapstructure:"curse_dir"`
	// ScriptDir holds the *.lua eligibility hooks for the curse catalog.
	ScriptDir string `mapstructure:"script_dir"`
	// SharedScriptDir holds hooks any catalog may name; a hook in ScriptDir
	// with the same name wins. Scripting is off when both dirs are empty.
	SharedScriptDir string `mapstructure:"shared_script_dir"`
	// InstructionLimit is the Lua opcode budget per hook call; 0 uses the default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// CommandsPerPass is the most commands one evaluation pass can dispatch: one
// from the flask tree and one from the combat tree.
const CommandsPerPass = 2

// BridgeConfig holds the game-client websocket bridge and tick settings.
type BridgeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Path is the websocket endpoint the game client connects to.
	Path string `mapstructure:"path"`
	// TickInterval is how often the newest snapshot is evaluated.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// DispatchRate is the sustained number of commands per second sent to the
	// client. It must cover CommandsPerPass every TickInterval.
	DispatchRate float64 `mapstructure:"dispatch_rate"`
	// DispatchBurst is the token bucket size for DispatchRate; at least
	// CommandsPerPass.
	DispatchBurst int `mapstructure:"dispatch_burst"`
	// WriteTimeout bounds a single websocket write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (b BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// StatusConfig holds the status HTTP API and gRPC health listeners.
type StatusConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// HTTPAddr returns the "host:port" address of the status API.
func (s StatusConfig) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.HTTPPort)
}

// GRPCAddr returns the "host:port" address of the gRPC health service.
func (s StatusConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// JournalConfig controls the optional Postgres decision journal.
type JournalConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Buffer is how many decisions may queue before new ones are dropped.
	Buffer   int            `mapstructure:"buffer"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Routine RoutineConfig `mapstructure:"routine"`
	Content ContentConfig `mapstructure:"content"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Status  StatusConfig  `mapstructure:"status"`
	Journal JournalConfig `mapstructure:"journal"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	for _, err := range []error{
		validateLogging(c.Logging),
		validateRoutine(c.Routine),
		validateContent(c.Content),
		validateBridge(c.Bridge),
		validateStatus(c.Status),
		validateJournal(c.Journal),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func joined(errs []string) error {
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateRoutine(r RoutineConfig) error {
	var errs []string
	switch strings.ToLower(r.Engagement) {
	case "", "melee", "ranged":
	default:
		errs = append(errs, fmt.Sprintf("routine.engagement must be one of [melee, ranged], got %q", r.Engagement))
	}
	for name, ratio := range map[string]float64{
		"routine.life_threshold": r.LifeThreshold,
		"routine.mana_threshold": r.ManaThreshold,
	} {
		if ratio < 0 || ratio > 1 {
			errs = append(errs, fmt.Sprintf("%s must be within [0, 1], got %v", name, ratio))
		}
	}
	for name, v := range map[string]float64{
		"routine.max_range":          r.MaxRange,
		"routine.totem_min_distance": r.TotemMinDistance,
		"routine.trap_radius":        r.TrapRadius,
		"routine.debuff_range":       r.DebuffRange,
		"routine.curse_radius":       r.CurseRadius,
	} {
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative, got %v", name, v))
		}
	}
	if r.TotemSafetyMargin < 0 || r.FlaskCooldown < 0 {
		errs = append(errs, "routine durations must not be negative")
	}
	if r.TrapCount < 0 || r.CurseCount < 0 {
		errs = append(errs, "routine counts must not be negative")
	}
	sort.Strings(errs)
	return joined(errs)
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.CurseDir == "" {
		errs = append(errs, "content.curse_dir must not be empty")
	}
	if c.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("content.instruction_limit must be >= 0, got %d", c.InstructionLimit))
	}
	return joined(errs)
}

// PassesDispatchable is how many full passes the sustained dispatch rate
// covers per tick. Below 1, some ticks must drop a decided command.
func (b BridgeConfig) PassesDispatchable() float64 {
	if b.TickInterval <= 0 {
		return 0
	}
	return b.DispatchRate*b.TickInterval.Seconds()/CommandsPerPass + 1e-9
}

func validateBridge(b BridgeConfig) error {
	var errs []string
	if !validPort(b.Port) {
		errs = append(errs, fmt.Sprintf("bridge.port must be 1-65535, got %d", b.Port))
	}
	if !strings.HasPrefix(b.Path, "/") {
		errs = append(errs, fmt.Sprintf("bridge.path must start with /, got %q", b.Path))
	}
	if b.TickInterval <= 0 {
		errs = append(errs, "bridge.tick_interval must be positive")
	}
	if b.DispatchRate <= 0 {
		errs = append(errs, fmt.Sprintf("bridge.dispatch_rate must be positive, got %v", b.DispatchRate))
	} else if b.TickInterval > 0 && b.PassesDispatchable() < 1 {
		errs = append(errs, fmt.Sprintf("bridge.dispatch_rate %v cannot sustain %d commands per %s tick",
			b.DispatchRate, CommandsPerPass, b.TickInterval))
	}
	if b.DispatchBurst < CommandsPerPass {
		errs = append(errs, fmt.Sprintf("bridge.dispatch_burst must be >= %d, got %d", CommandsPerPass, b.DispatchBurst))
	}
	if b.WriteTimeout < 0 {
		errs = append(errs, "bridge.write_timeout must not be negative")
	}
	return joined(errs)
}

func validateStatus(s StatusConfig) error {
	var errs []string
	if !validPort(s.HTTPPort) {
		errs = append(errs, fmt.Sprintf("status.http_port must be 1-65535, got %d", s.HTTPPort))
	}
	if !validPort(s.GRPCPort) {
		errs = append(errs, fmt.Sprintf("status.grpc_port must be 1-65535, got %d", s.GRPCPort))
	}
	if s.HTTPPort == s.GRPCPort {
		errs = append(errs, "status.http_port and status.grpc_port must differ")
	}
	return joined(errs)
}

func validateJournal(j JournalConfig) error {
	if !j.Enabled {
		return nil
	}
	var errs []string
	if j.Buffer < 1 {
		errs = append(errs, fmt.Sprintf("journal.buffer must be >= 1, got %d", j.Buffer))
	}
	if err := validateDatabase(j.Database); err != nil {
		errs = append(errs, err.Error())
	}
	return joined(errs)
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "journal.database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("journal.database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "journal.database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "journal.database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("journal.database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("journal.database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("journal.database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "journal.database.min_conns must not exceed journal.database.max_conns")
	}
	return joined(errs)
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// TOTEMBOT_BRIDGE_PORT overrides bridge.port, and so on.
	v.SetEnvPrefix("TOTEMBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a viper instance carrying only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("routine.engagement", "melee")
	v.SetDefault("routine.max_range", 50)
	v.SetDefault("routine.totem_spell", "Flame Totem")
	v.SetDefault("routine.totem_min_distance", 20)
	v.SetDefault("routine.totem_safety_margin", "500ms")
	v.SetDefault("routine.flask_cooldown", "500ms")
	v.SetDefault("routine.life_threshold", 0.70)
	v.SetDefault("routine.mana_threshold", 0.20)
	v.SetDefault("routine.trap_spell", "Cold Snap")
	v.SetDefault("routine.trap_radius", 16)
	v.SetDefault("routine.trap_count", 3)
	v.SetDefault("routine.debuff_spell", "Wither")
	v.SetDefault("routine.debuff_aura", "withered")
	v.SetDefault("routine.debuff_range", 40)
	v.SetDefault("routine.fallback_spell", "Default Attack")
	v.SetDefault("routine.curse_radius", 20)
	v.SetDefault("routine.curse_count", 3)

	v.SetDefault("content.curse_dir", "content/curses")
	v.SetDefault("content.script_dir", "content/scripts/curses")
	v.SetDefault("content.shared_script_dir", "content/scripts/shared")
	v.SetDefault("content.instruction_limit", 0)

	v.SetDefault("bridge.host", "127.0.0.1")
	v.SetDefault("bridge.port", 7777)
	v.SetDefault("bridge.path", "/bot")
	v.SetDefault("bridge.tick_interval", "100ms")
	v.SetDefault("bridge.dispatch_rate", 20)
	v.SetDefault("bridge.dispatch_burst", 3)
	v.SetDefault("bridge.write_timeout", "2s")

	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.http_port", 7780)
	v.SetDefault("status.grpc_port", 7781)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.buffer", 256)
	v.SetDefault("journal.database.host", "localhost")
	v.SetDefault("journal.database.port", 5432)
	v.SetDefault("journal.database.user", "totembot")
	v.SetDefault("journal.database.password", "totembot")
	v.SetDefault("journal.database.name", "totembot")
	v.SetDefault("journal.database.sslmode", "disable")
	v.SetDefault("journal.database.max_conns", 4)
	v.SetDefault("journal.database.min_conns", 1)
	v.SetDefault("journal.database.max_conn_lifetime", "1h")
}
