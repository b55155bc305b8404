// Package config wraps viper. Priority: flags > GFABASE_* environment >
// config file > defaults; commands consult it only for flags the user did
// not set explicitly.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Initialize sets up viper with the GFABASE env prefix and an optional
// .gfabase.yaml in the working directory or $HOME.
func Initialize() error {
	viper.SetEnvPrefix("GFABASE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("compress", 6)
	viper.SetDefault("memory-gbytes", 1)
	viper.SetDefault("verbose", false)
	viper.SetDefault("pager", "")

	viper.SetConfigName(".gfabase")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

func GetString(key string) string { return viper.GetString(key) }
func GetInt(key string) int       { return viper.GetInt(key) }
func GetBool(key string) bool     { return viper.GetBool(key) }
