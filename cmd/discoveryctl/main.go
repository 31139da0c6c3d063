// Command discoveryctl is a thin HTTP client for the discoveryd API,
// grounded on the teacher's own stdlib-only gateway CLI: same
// flag-scanning style, same doRequest/toFloat helpers, pointed at the
// discovery/automations/feedback surface instead of the governance one.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gateway := os.Getenv("DISCOVERY_GATEWAY_URL")
	if gateway == "" {
		gateway = "http://localhost:8080"
	}
	apiKey := os.Getenv("DISCOVERY_API_KEY")

	switch os.Args[1] {
	case "connect":
		cmdConnect(gateway, apiKey)
	case "disconnect":
		cmdDisconnect(gateway, apiKey)
	case "discover":
		cmdDiscover(gateway, apiKey)
	case "automations":
		cmdAutomations(gateway, apiKey)
	case "feedback":
		cmdFeedback(gateway, apiKey)
	case "version":
		fmt.Printf("discoveryctl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`discoveryctl v` + version + `

Usage: discoveryctl <command> [flags]

Commands:
  connect      Start an OAuth connection to a platform
  disconnect   Remove a platform connection
  discover     Enqueue a discovery run for a connection
  automations  List automations or show one by id
  feedback     Submit analyst feedback on an automation
  version      Print version
  help         Show this help

Environment:
  DISCOVERY_GATEWAY_URL   API base URL (default: http://localhost:8080)
  DISCOVERY_API_KEY       Organization API key (ocx_<id>.<secret>)

Examples:
  discoveryctl connect --platform slack
  discoveryctl discover --connection conn_123
  discoveryctl automations list --platform slack --risk high
  discoveryctl automations get --id auto_456
  discoveryctl feedback --automation auto_456 --verdict confirmed_shadow_ai`)
}

func cmdConnect(gateway, apiKey string) {
	platform := flagValue(os.Args[2:], "--platform")
	if platform == "" {
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl connect --platform <name>")
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]string{"platform": platform})
	resp, err := doRequest("POST", gateway+"/connections", body, apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	fmt.Printf("visit to authorize: %s\n", result["authorizationUrl"])
}

func cmdDisconnect(gateway, apiKey string) {
	id := flagValue(os.Args[2:], "--connection")
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl disconnect --connection <id>")
		os.Exit(1)
	}
	if _, err := doRequest("DELETE", gateway+"/connections/"+id, nil, apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("disconnected %s\n", id)
}

func cmdDiscover(gateway, apiKey string) {
	id := flagValue(os.Args[2:], "--connection")
	if id == "" {
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl discover --connection <id>")
		os.Exit(1)
	}
	resp, err := doRequest("POST", gateway+"/connections/"+id+"/discover", nil, apiKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	fmt.Printf("enqueued job %s\n", result["jobId"])
}

func cmdAutomations(gateway, apiKey string) {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl automations <list|get>")
		os.Exit(1)
	}
	switch os.Args[2] {
	case "list":
		query := ""
		for _, pair := range [][2]string{
			{"platform", flagValue(os.Args[3:], "--platform")},
			{"riskLevel", flagValue(os.Args[3:], "--risk")},
			{"status", flagValue(os.Args[3:], "--status")},
		} {
			if pair[1] != "" {
				sep := "?"
				if query != "" {
					sep = "&"
				}
				query += sep + pair[0] + "=" + pair[1]
			}
		}
		resp, err := doRequest("GET", gateway+"/automations"+query, nil, apiKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
			os.Exit(1)
		}
		var result map[string]interface{}
		json.Unmarshal(resp, &result)
		items, _ := result["automations"].([]interface{})
		if len(items) == 0 {
			fmt.Println("No automations found.")
			return
		}
		fmt.Printf("%-20s %-12s %-20s %s\n", "ID", "PLATFORM", "NAME", "RISK")
		fmt.Println("----------------------------------------------------------------------")
		for _, it := range items {
			a := it.(map[string]interface{})
			fmt.Printf("%-20s %-12s %-20s %v\n", a["id"], a["platform"], a["name"], a["overallRisk"])
		}
	case "get":
		id := flagValue(os.Args[3:], "--id")
		if id == "" {
			fmt.Fprintln(os.Stderr, "Usage: discoveryctl automations get --id <id>")
			os.Exit(1)
		}
		resp, err := doRequest("GET", gateway+"/automations/"+id, nil, apiKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
			os.Exit(1)
		}
		var pretty bytes.Buffer
		json.Indent(&pretty, resp, "", "  ")
		fmt.Println(pretty.String())
	default:
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl automations <list|get>")
		os.Exit(1)
	}
}

func cmdFeedback(gateway, apiKey string) {
	args := os.Args[2:]
	automationID := flagValue(args, "--automation")
	verdict := flagValue(args, "--verdict")
	notes := flagValue(args, "--notes")
	if automationID == "" || verdict == "" {
		fmt.Fprintln(os.Stderr, "Usage: discoveryctl feedback --automation <id> --verdict <verdict> [--notes text]")
		os.Exit(1)
	}
	body, _ := json.Marshal(map[string]string{
		"automationId": automationID,
		"verdict":      verdict,
		"notes":        notes,
	})
	if _, err := doRequest("POST", gateway+"/feedback", body, apiKey); err != nil {
		fmt.Fprintf(os.Stderr, "request failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("feedback recorded")
}

func flagValue(args []string, name string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func doRequest(method, url string, body []byte, apiKey string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
