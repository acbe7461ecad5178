// Command talkdubctl is the operator CLI for submitting dubbing jobs to a
// TalkDub server, checking their status, and running the queue-folder
// watcher as a background service.
package main

import "github.com/talkdub/talkdub/internal/cli"

func main() {
	cli.Execute()
}
