package market

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"eod-collector/pkg/confkit"
)

// Config names the exchange and reference providers used for collection.
type Config struct {
	Exchange  string                     `yaml:"exchange"`
	Reference string                     `yaml:"reference"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents configuration for a single upstream API.
type ProviderConfig struct {
	Type string `yaml:"type"`

	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	VsCurrency string `yaml:"vs_currency"`

	TimeoutRaw     string        `yaml:"timeout"`
	Timeout        time.Duration `yaml:"-"`
	HTTPTimeoutRaw string        `yaml:"http_timeout"`
	HTTPTimeout    time.Duration `yaml:"-"`
	BackoffRaw     string        `yaml:"rate_limit_backoff"`
	Backoff        time.Duration `yaml:"-"`

	CallsPerMinute int `yaml:"calls_per_minute"`
	BatchSize      int `yaml:"batch_size"`
}

// ExchangeBuilder constructs an Exchange from configuration.
type ExchangeBuilder func(name string, cfg *ProviderConfig) (Exchange, error)

// ReferenceBuilder constructs a Reference provider from configuration.
type ReferenceBuilder func(name string, cfg *ProviderConfig) (Reference, error)

var (
	registryMu        sync.RWMutex
	exchangeRegistry  = make(map[string]ExchangeBuilder)
	referenceRegistry = make(map[string]ReferenceBuilder)
)

// RegisterExchange registers an exchange constructor for a provider type.
func RegisterExchange(typeName string, builder ExchangeBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	exchangeRegistry[registryKey(typeName)] = builder
}

// RegisterReference registers a reference-data constructor for a provider type.
func RegisterReference(typeName string, builder ReferenceBuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	referenceRegistry[registryKey(typeName)] = builder
}

func registryKey(typeName string) string {
	return strings.ToLower(strings.TrimSpace(typeName))
}

func lookupExchange(typeName string) (ExchangeBuilder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := exchangeRegistry[registryKey(typeName)]
	return builder, ok
}

func lookupReference(typeName string) (ReferenceBuilder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	builder, ok := referenceRegistry[registryKey(typeName)]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open market config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	confkit.LoadDotenvOnce()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read market config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal market config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	c.Exchange = strings.TrimSpace(os.ExpandEnv(c.Exchange))
	c.Reference = strings.TrimSpace(os.ExpandEnv(c.Reference))
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.VsCurrency = strings.TrimSpace(os.ExpandEnv(p.VsCurrency))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	p.HTTPTimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.HTTPTimeoutRaw))
	p.BackoffRaw = strings.TrimSpace(os.ExpandEnv(p.BackoffRaw))
}

func (p *ProviderConfig) parseDurations(name string) error {
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", p.TimeoutRaw, &p.Timeout},
		{"http_timeout", p.HTTPTimeoutRaw, &p.HTTPTimeout},
		{"rate_limit_backoff", p.BackoffRaw, &p.Backoff},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("market provider %s: invalid %s %q: %w", name, f.key, f.raw, err)
		}
		if d <= 0 {
			return fmt.Errorf("market provider %s: %s must be positive, got %s", name, f.key, d)
		}
		*f.dst = d
	}
	return nil
}

// Validate ensures the configuration is structurally sound.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("market config: providers cannot be empty")
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("market config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	if err := c.validateRole("exchange", c.Exchange, func(t string) bool { _, ok := lookupExchange(t); return ok }); err != nil {
		return err
	}
	return c.validateRole("reference", c.Reference, func(t string) bool { _, ok := lookupReference(t); return ok })
}

func (c *Config) validateRole(role, name string, supported func(string) bool) error {
	if name == "" {
		return fmt.Errorf("market config: %s provider must be named", role)
	}
	provider, ok := c.Providers[name]
	if !ok {
		return fmt.Errorf("market config: %s provider %q not defined", role, name)
	}
	if !supported(provider.Type) {
		return fmt.Errorf("market config: provider %s has unsupported %s type %q", name, role, provider.Type)
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("market config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("market config: provider %s must specify type", name)
	}
	_, isExchange := lookupExchange(p.Type)
	_, isReference := lookupReference(p.Type)
	if !isExchange && !isReference {
		return fmt.Errorf("market config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.CallsPerMinute < 0 {
		return fmt.Errorf("market config: provider %s calls_per_minute cannot be negative", name)
	}
	if p.BatchSize < 0 {
		return fmt.Errorf("market config: provider %s batch_size cannot be negative", name)
	}
	return nil
}

// BuildExchange instantiates the configured exchange provider.
func (c *Config) BuildExchange() (Exchange, error) {
	cfg := c.Providers[c.Exchange]
	if cfg == nil {
		return nil, fmt.Errorf("market provider %s: not defined", c.Exchange)
	}
	builder, ok := lookupExchange(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("market provider %s: unsupported exchange type %q", c.Exchange, cfg.Type)
	}
	exchange, err := builder(c.Exchange, cfg)
	if err != nil {
		return nil, fmt.Errorf("market provider %s: %w", c.Exchange, err)
	}
	return exchange, nil
}

// BuildReference instantiates the configured reference-data provider.
func (c *Config) BuildReference() (Reference, error) {
	cfg := c.Providers[c.Reference]
	if cfg == nil {
		return nil, fmt.Errorf("market provider %s: not defined", c.Reference)
	}
	builder, ok := lookupReference(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("market provider %s: unsupported reference type %q", c.Reference, cfg.Type)
	}
	reference, err := builder(c.Reference, cfg)
	if err != nil {
		return nil, fmt.Errorf("market provider %s: %w", c.Reference, err)
	}
	return reference, nil
}
