package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	ecies "github.com/ecies/go/v2"
	"github.com/joho/godotenv"

	"github.com/kutluhann/kademlia-routing/constants"
)

var ErrInvalidConfig = errors.New("config: invalid value")

// Config is the runtime configuration of the routing core: table and
// lookup parameters plus the node's private key, read from the environment
// (and a .env file, if present).
type Config struct {
	privateKey *ecies.PrivateKey

	K                 int
	ReplacementFactor int
	HeapSize          int
	Alpha             int
	TargetDepth       int
	BucketIPLimit     uint
	BucketSubnet      uint
}

var (
	config     *Config
	configOnce sync.Once
	configErr  error
)

// Init loads the process-wide configuration once.
func Init() (*Config, error) {
	configOnce.Do(func() {
		godotenv.Load()
		config, configErr = Load(os.LookupEnv)
	})
	return config, configErr
}

func GetConfig() *Config {
	c, err := Init()
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		K:                 constants.K,
		ReplacementFactor: constants.ReplacementFactor,
		HeapSize:          constants.HeapSize,
		Alpha:             constants.Alpha,
		TargetDepth:       constants.TargetDepth,
		BucketIPLimit:     constants.BucketIPLimit,
		BucketSubnet:      constants.BucketSubnet,
	}
}

// Load builds a Config from lookup, falling back to the defaults for unset
// variables.
func Load(lookup func(string) (string, bool)) (*Config, error) {
	c := Default()

	ints := []struct {
		name string
		dst  *int
		min  int
	}{
		{"DHT_K", &c.K, 1},
		{"DHT_REPLACEMENT_FACTOR", &c.ReplacementFactor, 0},
		{"DHT_HEAP_SIZE", &c.HeapSize, 1},
		{"DHT_ALPHA", &c.Alpha, 1},
		{"DHT_TARGET_DEPTH", &c.TargetDepth, 1},
	}
	for _, v := range ints {
		raw, ok := lookup(v.name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, v.name, raw, err)
		}
		if n < v.min {
			return nil, fmt.Errorf("%w: %s must be at least %d, got %d", ErrInvalidConfig, v.name, v.min, n)
		}
		*v.dst = n
	}

	uints := []struct {
		name string
		dst  *uint
		max  uint64
	}{
		{"DHT_BUCKET_IP_LIMIT", &c.BucketIPLimit, 1 << 16},
		{"DHT_BUCKET_SUBNET", &c.BucketSubnet, 128},
	}
	for _, v := range uints {
		raw, ok := lookup(v.name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || n > v.max {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidConfig, v.name, raw)
		}
		*v.dst = uint(n)
	}

	if raw, ok := lookup("DHT_PRIVATE_KEY"); ok && raw != "" {
		key, err := ecies.NewPrivateKeyFromHex(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: DHT_PRIVATE_KEY: %v", ErrInvalidConfig, err)
		}
		c.privateKey = key
	}
	return c, nil
}

func (c *Config) SetPrivateKey(key *ecies.PrivateKey) {
	c.privateKey = key
}

func (c *Config) GetPrivateKey() *ecies.PrivateKey {
	return c.privateKey
}

func (c *Config) HasPrivateKey() bool {
	return c.privateKey != nil
}
