package main

import (
	"fmt"
	"os"
)

// Exit codes
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitInvalidArgs  = 2
	ExitConfigError  = 3
	ExitStorageError = 4
	ExitFramesFailed = 5
	ExitInterrupted  = 6
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "render":
		return runRender(cmdArgs)
	case "enqueue":
		return runEnqueue(cmdArgs)
	case "worker":
		return runWorker(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: renderpull <command> [options]

Commands:
  render    Download the rendered frames of a scene into the output store
  enqueue   Queue a render download for a worker
  worker    Consume queued render downloads and serve their status over HTTP

Run 'renderpull <command> -h' for command-specific help.`)
}
