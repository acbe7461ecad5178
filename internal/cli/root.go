// Package cli implements talkdubctl, the operator-facing command line
// client adapted from this project's folder-watching CLI: same
// cobra/viper/kardianos-service shape, repointed from "watch a folder and
// upload audio" to "submit video URLs to a TalkDub server and poll their
// status."
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "talkdubctl",
	Short: "TalkDub operator CLI",
	Long:  `Submit dubbing jobs to a TalkDub server, check their status, and optionally run as a background queue-folder watcher.`,
}

// cfgFile holds an explicit --config path, read by InitConfig and reused by
// the service installer so the service runs against the same config file
// the operator used on the command line.
var cfgFile string

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.talkdubctl.yaml)")
	cobra.OnInitialize(InitConfig)
}
