package cli

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	installCmd = &cobra.Command{
		Use:   "install [folder]",
		Short: "Install the queue-folder watcher as a background service",
		Args:  cobra.MaximumNArgs(1),
		Run:   runInstall,
	}

	startCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the watcher service",
		Run:   runStart,
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop the watcher service",
		Run:   runStop,
	}

	uninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall the watcher service",
		Run:   runUninstall,
	}

	logsCmd = &cobra.Command{
		Use:   "logs",
		Short: "Tail the service logs",
		Run:   runLogs,
	}
)

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(logsCmd)
}

type program struct{}

func (p *program) Start(s service.Service) error {
	go p.run()
	return nil
}

func (p *program) run() {
	if err := setupServiceLogging(); err != nil {
		log.Printf("Failed to setup file logging: %v", err)
	}

	log.Println("Service starting...")

	config := GetConfig()
	log.Printf("Loaded config: ServerURL=%s, QueueFolder=%s", config.ServerURL, config.QueueFolder)

	if config.QueueFolder == "" {
		log.Println("No queue folder configured. Run 'talkdubctl install [folder]' first.")
		return
	}

	watchFolder(config.QueueFolder)
}

func (p *program) Stop(s service.Service) error {
	log.Println("Service stopping...")
	return nil
}

func getServiceConfig(configPath string) *service.Config {
	ex, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}

	args := []string{"service-run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	return &service.Config{
		Name:        "talkdubctl-watcher",
		DisplayName: "TalkDub Queue Watcher",
		Description: "Watches a folder for .job request files and submits them to a TalkDub server.",
		Executable:  ex,
		Arguments:   args,
	}
}

var serviceRunCmd = &cobra.Command{
	Use:    "service-run",
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := setupServiceLogging(); err != nil {
			log.Printf("Failed to setup file logging: %v", err)
		}
		log.Println("Starting service-run command...")

		prg := &program{}
		s, err := service.New(prg, getServiceConfig(""))
		if err != nil {
			log.Fatalf("Failed to create service: %v", err)
		}

		svcLogger, err := s.Logger(nil)
		if err != nil {
			log.Printf("Failed to get system logger: %v", err)
		} else {
			_ = svcLogger.Info("TalkDub watcher service starting...")
		}

		if err = s.Run(); err != nil {
			if svcLogger != nil {
				_ = svcLogger.Error(err)
			}
			log.Fatalf("Service failed to run: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serviceRunCmd)
}

func runInstall(cmd *cobra.Command, args []string) {
	var configPath string
	if len(args) > 0 {
		folder := args[0]
		absPath, err := filepath.Abs(folder)
		if err != nil {
			log.Fatalf("Failed to get absolute path: %v", err)
		}

		serverURL := viper.GetString("server_url")

		if os.Geteuid() == 0 {
			sudoUser := os.Getenv("SUDO_USER")
			if sudoUser != "" {
				if u, err := user.Lookup(sudoUser); err == nil {
					userConfigPath := filepath.Join(u.HomeDir, ".talkdubctl.yaml")
					if _, err := os.Stat(userConfigPath); err == nil {
						v := viper.New()
						v.SetConfigFile(userConfigPath)
						if err := v.ReadInConfig(); err == nil {
							if userURL := v.GetString("server_url"); userURL != "" {
								serverURL = userURL
								fmt.Printf("Inherited server URL from user %s\n", sudoUser)
							}
						}
					}
				}
			}
		}

		var errSave error
		configPath, errSave = SaveConfig(serverURL, absPath, "", "", "")
		if errSave != nil {
			log.Fatalf("Failed to save config: %v", errSave)
		}
		fmt.Printf("Configured to watch: %s\n", absPath)
	} else {
		config := GetConfig()
		if config.QueueFolder == "" {
			log.Fatalf("No queue folder specified. Usage: talkdubctl install [folder]")
		}
		if cfgFile != "" {
			configPath = cfgFile
		} else {
			home, err := os.UserHomeDir()
			if err == nil {
				configPath = filepath.Join(home, ".talkdubctl.yaml")
			}
		}
	}

	s, err := service.New(&program{}, getServiceConfig(configPath))
	if err != nil {
		log.Fatal(err)
	}

	if err = s.Install(); err != nil {
		log.Fatalf("Failed to install service: %v", err)
	}
	fmt.Println("Service installed successfully.")
}

func runStart(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err = s.Start(); err != nil {
		log.Fatalf("Failed to start service: %v", err)
	}
	fmt.Println("Service started.")
}

func runStop(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err = s.Stop(); err != nil {
		log.Fatalf("Failed to stop service: %v", err)
	}
	fmt.Println("Service stopped.")
}

func runUninstall(cmd *cobra.Command, args []string) {
	s, err := service.New(&program{}, getServiceConfig(""))
	if err != nil {
		log.Fatal(err)
	}
	if err = s.Uninstall(); err != nil {
		log.Fatalf("Failed to uninstall service: %v", err)
	}
	fmt.Println("Service uninstalled.")
}

func getLogFilePath() string {
	return "/tmp/talkdubctl-service.log"
}

func setupServiceLogging() error {
	logFile := getLogFilePath()
	f, err := os.OpenFile(logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening file: %v", err)
	}
	log.SetOutput(f)
	return nil
}

func runLogs(cmd *cobra.Command, args []string) {
	logFile := getLogFilePath()
	fmt.Printf("Tailing logs from %s...\n", logFile)

	c := exec.Command("tail", "-f", logFile)
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	if err := c.Run(); err != nil {
		fmt.Printf("Error tailing logs: %v\n", err)
	}
}
