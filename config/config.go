package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ammpool/crypto"

	"github.com/BurntSushi/toml"
)

// TokenConfig describes one of the two pool assets registered at startup.
type TokenConfig struct {
	Symbol        string `toml:"Symbol"`
	Name          string `toml:"Name"`
	Decimals      uint8  `toml:"Decimals"`
	InitialSupply string `toml:"InitialSupply"`
}

type Config struct {
	RPCAddress        string      `toml:"RPCAddress"`
	MetricsAddress    string      `toml:"MetricsAddress"`
	DataDir           string      `toml:"DataDir"`
	OwnerKeystorePath string      `toml:"OwnerKeystorePath"`
	TokenA            TokenConfig `toml:"TokenA"`
	TokenB            TokenConfig `toml:"TokenB"`
}

// Load loads the configuration from the given path, creating a default file
// and owner keystore on first run.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	for _, tc := range []TokenConfig{c.TokenA, c.TokenB} {
		if strings.TrimSpace(tc.Symbol) == "" {
			return fmt.Errorf("config: both pool token symbols required")
		}
	}
	if strings.EqualFold(strings.TrimSpace(c.TokenA.Symbol), strings.TrimSpace(c.TokenB.Symbol)) {
		return fmt.Errorf("config: pool token symbols must differ")
	}
	return nil
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OwnerKeystorePath != keystorePath {
		cfg.OwnerKeystorePath = keystorePath
		return persist(configPath, cfg)
	}

	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		RPCAddress:     ":8080",
		MetricsAddress: ":9090",
		DataDir:        "./ammpool-data",
		TokenA: TokenConfig{
			Symbol:        "TKA",
			Name:          "Token A",
			Decimals:      18,
			InitialSupply: "1000000000000000000000000",
		},
		TokenB: TokenConfig{
			Symbol:        "TKB",
			Name:          "Token B",
			Decimals:      18,
			InitialSupply: "1000000000000000000000000",
		},
	}
	cfg.OwnerKeystorePath = keystorePath

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
