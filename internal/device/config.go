package device

import (
	"fmt"

	"github.com/spf13/viper"
)

// PoolConfig holds the settings for opening a pool image.
type PoolConfig struct {
	Image           string `mapstructure:"image"`
	LabelIndex      int    `mapstructure:"label_index"`
	MaxBlockSize    int    `mapstructure:"max_block_size"`
	VerifyChecksums bool   `mapstructure:"verify_checksums"`
}

// LoadPoolConfig loads pool settings using Viper.
func LoadPoolConfig() (*PoolConfig, error) {
	viper.SetConfigName("zdb-browse")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.zdb-browse")

	// Set defaults
	viper.SetDefault("image", "")
	viper.SetDefault("label_index", 0)
	viper.SetDefault("max_block_size", 1<<20)
	viper.SetDefault("verify_checksums", false)

	// Allow environment variables
	viper.SetEnvPrefix("ZDB")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config PoolConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}
