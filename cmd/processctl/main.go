// Command processctl is a thin CLI client over the REST control surface of
// internal/infrastructure/api/rest: start, monitor, pause, resume, and
// cancel operations against a running server. It does not host an engine
// itself; each subcommand gets its own flag.FlagSet.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return 2
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "execute":
		return cmdExecute(rest)
	case "list":
		return cmdList(rest)
	case "get":
		return cmdGet(rest)
	case "pause":
		return cmdControl(rest, "pause")
	case "resume":
		return cmdControl(rest, "resume")
	case "cancel":
		return cmdControl(rest, "cancel")
	case "version":
		fmt.Printf("processctl %s\n", version)
		return 0
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "processctl: unknown command %q\n\n", cmd)
		printUsage(os.Stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `processctl drives a running process-thread orchestration engine over its REST control surface.

Usage:
  processctl execute -version-id <id> [-base-url <url>] [-input <json>] [-mode <n>] [-trigger <key>]
  processctl list [-base-url <url>]
  processctl get -exec-id <id> [-base-url <url>]
  processctl pause  -exec-id <id> [-base-url <url>]
  processctl resume -exec-id <id> [-base-url <url>]
  processctl cancel -exec-id <id> [-base-url <url>]
  processctl version`)
}

// commonFlags registers the -base-url flag every subcommand shares.
func commonFlags(fs *flag.FlagSet) *string {
	return fs.String("base-url", envOr("PROCESSCTL_BASE_URL", "http://localhost:8080"), "base URL of the orchestration engine's REST server")
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func cmdExecute(args []string) int {
	fs := flag.NewFlagSet("execute", flag.ContinueOnError)
	baseURL := commonFlags(fs)
	versionID := fs.Int64("version-id", 0, "thread version id to execute")
	threadID := fs.Int64("thread-id", 0, "thread id")
	input := fs.String("input", "{}", "input payload as a JSON object")
	mode := fs.Int("mode", 0, "execution mode id (0 Manual, 1 Webhook, 2 Scheduled, 3 Event, 4 Test, 5 SubProcess)")
	trigger := fs.String("trigger", "", "trigger element key")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *versionID == 0 {
		fmt.Fprintln(os.Stderr, "processctl execute: -version-id is required")
		return 2
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(*input), &payload); err != nil {
		fmt.Fprintf(os.Stderr, "processctl execute: invalid -input JSON: %v\n", err)
		return 2
	}

	body, err := json.Marshal(map[string]any{
		"thread_id":           *threadID,
		"input":               payload,
		"mode":                *mode,
		"trigger_element_key": *trigger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	return postJSON(fmt.Sprintf("%s/api/v1/threads/%d/execute", *baseURL, *versionID), body)
}

func cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	baseURL := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	return getJSON(fmt.Sprintf("%s/api/v1/executions", *baseURL))
}

func cmdGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	baseURL := commonFlags(fs)
	execID := fs.String("exec-id", "", "thread-execution id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *execID == "" {
		fmt.Fprintln(os.Stderr, "processctl get: -exec-id is required")
		return 2
	}
	return getJSON(fmt.Sprintf("%s/api/v1/executions/%s", *baseURL, *execID))
}

func cmdControl(args []string, verb string) int {
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	baseURL := commonFlags(fs)
	execID := fs.String("exec-id", "", "thread-execution id")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *execID == "" {
		fmt.Fprintf(os.Stderr, "processctl %s: -exec-id is required\n", verb)
		return 2
	}
	return postJSON(fmt.Sprintf("%s/api/v1/executions/%s/%s", *baseURL, *execID, verb), nil)
}

func postJSON(url string, body []byte) int {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	return handleResponse(resp, err)
}

func getJSON(url string) int {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	return handleResponse(resp, err)
}

func handleResponse(resp *http.Response, err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "processctl: request failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	var pretty bytes.Buffer
	raw, readErr := io.ReadAll(resp.Body)
	if readErr == nil && json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return 1
	}
	return 0
}
