package device

import (
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/vkngwrapper/armory/vam"
	"github.com/vkngwrapper/armory/vkerr"
)

// EnvPrefix prefixes every environment override LoadConfig reads
const EnvPrefix = "ARMORY_"

// Config is everything a Device can be configured with outside of code
type Config struct {
	Allocator     AllocatorConfig `toml:"allocator"`
	PipelineCache CacheConfig     `toml:"pipeline_cache"`
	Log           LogConfig       `toml:"log"`
	Debug         DebugConfig     `toml:"debug"`
}

type AllocatorConfig struct {
	// ExternallySynchronized disables the allocator's internal mutex
	ExternallySynchronized bool `toml:"externally_synchronized"`
	// PreferredLargeHeapBlockSize is the block size for heaps over a gigabyte. Zero keeps the
	// allocator default.
	PreferredLargeHeapBlockSize int `toml:"preferred_large_heap_block_size"`
	// HeapSizeLimits caps each heap in bytes, -1 or 0 meaning no limit
	HeapSizeLimits []int `toml:"heap_size_limits"`
}

type CacheConfig struct {
	// Path is where the pipeline cache is loaded from at creation and saved to on Destroy.
	// An empty path keeps the cache in memory only.
	Path string `toml:"path"`
}

type LogConfig struct {
	// Level is one of debug, info, warn or error
	Level string `toml:"level"`
	// Format is one of pretty, json or text
	Format       string `toml:"format"`
	Prefix       string `toml:"prefix"`
	ReportCaller bool   `toml:"report_caller"`
}

type DebugConfig struct {
	// ObjectNames passes the name of every tracked object to debug-utils when it is enabled
	ObjectNames bool `toml:"object_names"`
	// LeakReport logs every object still alive when the Device is destroyed
	LeakReport bool `toml:"leak_report"`
}

// DefaultConfig is the configuration a Device uses when nothing overrides it
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: FormatPretty,
		},
		Debug: DebugConfig{
			LeakReport: true,
		},
	}
}

// AllocatorOptions converts the allocator section to allocator create options
func (c Config) AllocatorOptions() vam.CreateOptions {
	options := vam.CreateOptions{
		PreferredLargeHeapBlockSize: c.Allocator.PreferredLargeHeapBlockSize,
		HeapSizeLimits:              c.Allocator.HeapSizeLimits,
	}
	if c.Allocator.ExternallySynchronized {
		options.Flags |= vam.AllocatorCreateExternallySynchronized
	}
	return options
}

// ParseConfig decodes TOML on top of DefaultConfig. Unknown keys are rejected.
func ParseConfig(r io.Reader) (Config, error) {
	config := DefaultConfig()

	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&config)
	if err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, vkerr.Wrap(vkerr.ValidationError, err, "unknown configuration keys:\n%s", strict.String())
		}
		return Config{}, errors.Wrap(err, "failed to decode configuration")
	}

	return config, config.Validate()
}

// LoadConfig reads the TOML file at path, then applies ARMORY_* overrides from envFiles and
// finally from the process environment, which wins. An empty path starts from DefaultConfig.
// Env files that do not exist are skipped.
func LoadConfig(path string, envFiles ...string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "failed to open configuration %q", path)
		}
		defer file.Close()

		config, err = ParseConfig(file)
		if err != nil {
			return Config{}, errors.Wrapf(err, "configuration %q", path)
		}
	}

	env, err := readEnvFiles(envFiles)
	if err != nil {
		return Config{}, err
	}
	for _, pair := range os.Environ() {
		key, value, _ := strings.Cut(pair, "=")
		if strings.HasPrefix(key, EnvPrefix) {
			env[key] = value
		}
	}

	err = config.ApplyEnv(env)
	if err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func readEnvFiles(files []string) (map[string]string, error) {
	present := make([]string, 0, len(files))
	for _, file := range files {
		_, err := os.Stat(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "failed to read env file %q", file)
		}
		present = append(present, file)
	}

	if len(present) == 0 {
		return map[string]string{}, nil
	}

	env, err := godotenv.Read(present...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse env files")
	}
	return env, nil
}

// ApplyEnv overrides fields from ARMORY_* keys in env. Keys without the prefix are ignored.
func (c *Config) ApplyEnv(env map[string]string) error {
	for key, value := range env {
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}

		var err error
		switch strings.TrimPrefix(key, EnvPrefix) {
		case "LOG_LEVEL":
			c.Log.Level = value
		case "LOG_FORMAT":
			c.Log.Format = value
		case "LOG_PREFIX":
			c.Log.Prefix = value
		case "LOG_REPORT_CALLER":
			c.Log.ReportCaller, err = strconv.ParseBool(value)
		case "PIPELINE_CACHE_PATH":
			c.PipelineCache.Path = value
		case "ALLOCATOR_EXTERNALLY_SYNCHRONIZED":
			c.Allocator.ExternallySynchronized, err = strconv.ParseBool(value)
		case "ALLOCATOR_BLOCK_SIZE":
			c.Allocator.PreferredLargeHeapBlockSize, err = strconv.Atoi(value)
		case "DEBUG_OBJECT_NAMES":
			c.Debug.ObjectNames, err = strconv.ParseBool(value)
		case "DEBUG_LEAK_REPORT":
			c.Debug.LeakReport, err = strconv.ParseBool(value)
		default:
			return vkerr.New(vkerr.ValidationError, "unknown configuration override %s", key)
		}

		if err != nil {
			return vkerr.Wrap(vkerr.ValidationError, err, "invalid value %q for %s", value, key)
		}
	}

	return nil
}

// Validate reports the first field of c that a Device cannot use
func (c Config) Validate() error {
	if c.Allocator.PreferredLargeHeapBlockSize < 0 {
		return vkerr.New(vkerr.ValidationError, "preferred large heap block size %d is negative", c.Allocator.PreferredLargeHeapBlockSize)
	}

	_, err := parseLevel(c.Log.Level)
	if err != nil {
		return err
	}

	switch c.Log.Format {
	case "", FormatPretty, FormatJSON, FormatText:
	default:
		return vkerr.New(vkerr.ValidationError, "unknown log format %q", c.Log.Format)
	}
	return nil
}
