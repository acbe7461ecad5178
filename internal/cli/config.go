package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds the talkdubctl configuration: which server to talk to and,
// for the queue-folder watcher, which folder to watch.
type Config struct {
	ServerURL   string `mapstructure:"server_url"`
	QueueFolder string `mapstructure:"queue_folder"`
	SrcLang     string `mapstructure:"default_src_lang"`
	TgtLang     string `mapstructure:"default_tgt_lang"`
	Email       string `mapstructure:"default_email"`
}

// InitConfig loads ~/.talkdubctl.yaml (or the path given via --config),
// following the same viper bootstrap as before.
func InitConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".talkdubctl")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		// Config file found and loaded.
	}
}

// SaveConfig persists any non-empty fields to ~/.talkdubctl.yaml (or
// cfgFile, if set), returning the path written.
func SaveConfig(serverURL, queueFolder, srcLang, tgtLang, email string) (string, error) {
	if serverURL != "" {
		viper.Set("server_url", serverURL)
	}
	if queueFolder != "" {
		viper.Set("queue_folder", queueFolder)
	}
	if srcLang != "" {
		viper.Set("default_src_lang", srcLang)
	}
	if tgtLang != "" {
		viper.Set("default_tgt_lang", tgtLang)
	}
	if email != "" {
		viper.Set("default_email", email)
	}

	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, ".talkdubctl.yaml")
	}
	return path, viper.WriteConfigAs(path)
}

// GetConfig returns the current configuration.
func GetConfig() *Config {
	return &Config{
		ServerURL:   viper.GetString("server_url"),
		QueueFolder: viper.GetString("queue_folder"),
		SrcLang:     viper.GetString("default_src_lang"),
		TgtLang:     viper.GetString("default_tgt_lang"),
		Email:       viper.GetString("default_email"),
	}
}
