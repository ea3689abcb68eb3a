package core

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// Command is a parsed CLI invocation.
type Command struct {
	Name string // send, get, info, burn

	// send
	Paths        []string
	ServerURL    string
	MaxDownloads int
	ExpiryHours  int

	// get / info / burn
	Link       string
	OutputPath string
}

// ParseArgs parses os.Args[1:] into a Command.
func ParseArgs(args []string) (*Command, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<command>", Cause: "expected one of: send, get, info, burn"}
	}

	cmd := &Command{Name: args[0]}
	rest := args[1:]

	switch cmd.Name {
	case "send":
		fs := flag.NewFlagSet("send", flag.ContinueOnError)
		fs.StringVar(&cmd.ServerURL, "server", envOr("SEALDROP_SERVER", "http://localhost:8080"), "server base URL")
		fs.IntVar(&cmd.MaxDownloads, "downloads", 1, "maximum number of downloads")
		fs.IntVar(&cmd.ExpiryHours, "expiry", 24, "hours until the share expires")
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return nil, &ValidationError{Arg: "send", Cause: "expected at least one file or directory to send"}
		}

		for _, arg := range fs.Args() {
			p := filepath.Clean(arg)
			if _, err := os.Stat(p); err != nil {
				return nil, &ValidationError{Arg: arg, Cause: "not found or not accessible"}
			}
			cmd.Paths = append(cmd.Paths, p)
		}

	case "get":
		fs := flag.NewFlagSet("get", flag.ContinueOnError)
		fs.StringVar(&cmd.OutputPath, "o", "", "output path (defaults to the shared display name)")
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		if fs.NArg() != 1 {
			return nil, &ValidationError{Arg: "get", Cause: "expected exactly one share link"}
		}
		cmd.Link = fs.Arg(0)

	case "info", "burn":
		if len(rest) != 1 {
			return nil, &ValidationError{Arg: cmd.Name, Cause: "expected exactly one share link"}
		}
		cmd.Link = rest[0]

	default:
		return nil, &ValidationError{Arg: cmd.Name, Cause: "unknown command, expected one of: send, get, info, burn"}
	}

	return cmd, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
