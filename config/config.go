// Package config holds the run parameters for the census. Every key has a
// default matching the production workload, so a run with no census.yaml
// in the working directory needs no flags and no environment.
package config

import (
	"errors"
	"runtime"

	"github.com/spf13/viper"
)

const (
	// MaxPly is the game's bounded horizon on a 7x6 board.
	MaxPly = 42
	// DefaultTableCapacity sizes each frontier for the full workload; one
	// table at this capacity occupies 48 GiB, the pair 96 GiB.
	DefaultTableCapacity = uint64(3) << 31
	// DefaultChunkSize is how many slots a worker claims per scan chunk.
	DefaultChunkSize = uint64(1) << 20
)

type Config struct {
	OracleBinary   string `mapstructure:"oracle-binary"`
	SolutionDir    string `mapstructure:"solution-dir"`
	OracleInMemory bool   `mapstructure:"oracle-in-memory"`
	// Threads is the worker count; 0 means all hardware threads.
	Threads       int    `mapstructure:"threads"`
	TableCapacity uint64 `mapstructure:"table-capacity"`
	ChunkSize     uint64 `mapstructure:"chunk-size"`
	MaxDepth      int    `mapstructure:"max-depth"`
	CSVPath       string `mapstructure:"csv-path"`
	Debug         bool   `mapstructure:"debug"`
}

// Load reads census.yaml from the working directory if present and falls
// back to defaults otherwise.
func (c *Config) Load() error {
	v := viper.New()
	v.SetConfigName("census")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("oracle-binary", "./wdl.out")
	v.SetDefault("solution-dir", "solution_w7_h6")
	v.SetDefault("oracle-in-memory", false)
	v.SetDefault("threads", 0)
	v.SetDefault("table-capacity", DefaultTableCapacity)
	v.SetDefault("chunk-size", DefaultChunkSize)
	v.SetDefault("max-depth", MaxPly)
	v.SetDefault("csv-path", "output.csv")
	v.SetDefault("debug", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	if err := v.Unmarshal(c); err != nil {
		return err
	}
	if c.Threads <= 0 {
		c.Threads = runtime.NumCPU()
	}
	return nil
}
