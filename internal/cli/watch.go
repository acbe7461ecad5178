package cli

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Watch a folder for .job request files and submit each as a dubbing job",
	Args:  cobra.ExactArgs(1),
	Run:   runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	folder := args[0]
	absPath, err := filepath.Abs(folder)
	if err != nil {
		log.Fatalf("Failed to get absolute path: %v", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		log.Fatalf("Folder does not exist: %s", absPath)
	}

	if _, err := SaveConfig("", absPath, "", "", ""); err != nil {
		fmt.Printf("Warning: failed to save queue folder to config: %v\n", err)
	}

	watchFolder(absPath)
}

// watchFolder watches path for new ".job" request files. Each file holds a
// newline-separated submission: video_url, src_lang, tgt_lang, email. On a
// debounced write/create event the file is parsed and submitted; a
// malformed or incomplete file is logged and left in place for inspection.
// Uses fsnotify like this project's credential hot reload
// (internal/config/watch.go), which reacts to each event directly; this
// watcher adds a per-file debounce timer before reading a request file.
func watchFolder(path string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatal(err)
	}
	defer watcher.Close()

	timers := make(map[string]*time.Timer)
	var mu sync.Mutex

	done := make(chan bool)

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
					if strings.ToLower(filepath.Ext(event.Name)) != ".job" {
						continue
					}

					mu.Lock()
					if t, exists := timers[event.Name]; exists {
						t.Stop()
					}
					timers[event.Name] = time.AfterFunc(2*time.Second, func() {
						mu.Lock()
						delete(timers, event.Name)
						mu.Unlock()

						submitRequestFile(event.Name)
					})
					mu.Unlock()
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Println("error:", err)
			}
		}
	}()

	if err := watcher.Add(path); err != nil {
		log.Fatal(err)
	}
	log.Printf("Watching %s for .job request files...\n", path)
	<-done
}

func submitRequestFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Printf("failed to open %s: %v", path, err)
		return
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) < 4 {
		log.Printf("%s: expected 4 lines (video_url, src_lang, tgt_lang, email), got %d", path, len(lines))
		return
	}

	log.Printf("submitting %s...\n", lines[0])
	resp, err := SubmitJob(lines[0], lines[1], lines[2], lines[3])
	if err != nil {
		log.Printf("failed to submit %s: %v", path, err)
		return
	}
	log.Printf("submitted %s as job %s (status=%s)\n", lines[0], resp.JobID, resp.Status)
}
