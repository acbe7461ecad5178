package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	submitSrcLang string
	submitTgtLang string
	submitEmail   string
)

var submitCmd = &cobra.Command{
	Use:   "submit [video_url]",
	Short: "Submit a video URL for dubbing",
	Args:  cobra.ExactArgs(1),
	Run:   runSubmit,
}

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the TalkDub server URL and defaults",
	Run:   runConfigure,
}

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Check a job's status",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

func init() {
	submitCmd.Flags().StringVar(&submitSrcLang, "src-lang", "", "source language (defaults to configured default)")
	submitCmd.Flags().StringVar(&submitTgtLang, "tgt-lang", "", "target language (defaults to configured default)")
	submitCmd.Flags().StringVar(&submitEmail, "email", "", "notification email (defaults to configured default)")

	configureCmd.Flags().String("server", "", "TalkDub server URL")
	configureCmd.Flags().String("src-lang", "", "default source language")
	configureCmd.Flags().String("tgt-lang", "", "default target language")
	configureCmd.Flags().String("email", "", "default notification email")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(statusCmd)
}

func runSubmit(cmd *cobra.Command, args []string) {
	config := GetConfig()
	srcLang := firstNonEmpty(submitSrcLang, config.SrcLang)
	tgtLang := firstNonEmpty(submitTgtLang, config.TgtLang)
	email := firstNonEmpty(submitEmail, config.Email)

	if srcLang == "" || tgtLang == "" || email == "" {
		fmt.Println("src-lang, tgt-lang, and email are required (pass as flags or set defaults via 'talkdubctl configure')")
		os.Exit(1)
	}

	resp, err := SubmitJob(args[0], srcLang, tgtLang, email)
	if err != nil {
		fmt.Printf("submit failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("job_id: %s\nstatus: %s\nstatus_url: %s\ndownload_url: %s\n", resp.JobID, resp.Status, resp.StatusURL, resp.DownloadURL)
}

func runStatus(cmd *cobra.Command, args []string) {
	status, err := JobStatus(args[0])
	if err != nil {
		fmt.Printf("status check failed: %v\n", err)
		os.Exit(1)
	}
	for k, v := range status {
		fmt.Printf("%s: %v\n", k, v)
	}
}

func runConfigure(cmd *cobra.Command, args []string) {
	server, _ := cmd.Flags().GetString("server")
	srcLang, _ := cmd.Flags().GetString("src-lang")
	tgtLang, _ := cmd.Flags().GetString("tgt-lang")
	email, _ := cmd.Flags().GetString("email")

	path, err := SaveConfig(server, "", srcLang, tgtLang, email)
	if err != nil {
		fmt.Printf("failed to save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("configuration saved to %s\n", path)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
