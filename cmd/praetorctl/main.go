package main

import (
	"flag"
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "verify-chain":
		handleVerifyChain(args)
	case "correlate":
		handleCorrelate(args)
	case "incidents":
		handleIncidents(args)
	case "blocked":
		handleBlocked(args)
	case "traps":
		handleTraps(args)
	case "version":
		fmt.Printf("praetorctl version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("praetorctl - Praetor CLI Tool")
	fmt.Println()
	fmt.Println("Usage: praetorctl <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  verify-chain <org>   Verify the org's evidence chain")
	fmt.Println("  correlate <org>      Run a correlation pass")
	fmt.Println("  incidents <org>      List incidents (--status filters)")
	fmt.Println("  blocked <org>        List blocked actors")
	fmt.Println("  traps <org>          List deception traps")
	fmt.Println()
	fmt.Println("  version              Show version")
	fmt.Println("  help                 Show this help")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --server <url>       Praetor server URL (default: http://localhost:8710)")
}

func parseFlags(name string, args []string) (string, string, []string) {
	var serverURL, status string
	flagSet := flag.NewFlagSet(name, flag.ExitOnError)
	flagSet.StringVar(&serverURL, "server", "http://localhost:8710", "Praetor server URL")
	flagSet.StringVar(&status, "status", "", "Incident status filter")
	flagSet.Parse(args)
	return serverURL, status, flagSet.Args()
}

func handleVerifyChain(args []string) {
	serverURL, _, rest := parseFlags("verify-chain", args)
	if len(rest) != 1 {
		fmt.Println("Usage: praetorctl verify-chain <org>")
		os.Exit(1)
	}

	client := NewPraetorClient(serverURL)
	result, err := client.VerifyChain(rest[0])
	if err != nil {
		fmt.Printf("Error verifying chain for '%s': %v\n", rest[0], err)
		os.Exit(1)
	}

	if result.Valid {
		fmt.Printf("Chain valid (%d records)\n", result.Count)
		return
	}
	fmt.Printf("Chain BROKEN at record %d: %s (%d records verified)\n", result.BrokenAt, result.Reason, result.Count)
	os.Exit(2)
}

func handleCorrelate(args []string) {
	serverURL, _, rest := parseFlags("correlate", args)
	if len(rest) != 1 {
		fmt.Println("Usage: praetorctl correlate <org>")
		os.Exit(1)
	}

	client := NewPraetorClient(serverURL)
	result, err := client.Correlate(rest[0])
	if err != nil {
		fmt.Printf("Error running correlation for '%s': %v\n", rest[0], err)
		os.Exit(1)
	}

	fmt.Printf("Examined %d events: %d incidents created, %d updated\n",
		result.EventsExamined, result.IncidentsCreated, result.IncidentsUpdated)
	for _, id := range result.IncidentIDs {
		fmt.Printf("  %s\n", id)
	}
}

func handleIncidents(args []string) {
	serverURL, status, rest := parseFlags("incidents", args)
	if len(rest) != 1 {
		fmt.Println("Usage: praetorctl incidents <org> [--status OPEN]")
		os.Exit(1)
	}

	client := NewPraetorClient(serverURL)
	incidents, err := client.ListIncidents(rest[0], status)
	if err != nil {
		fmt.Printf("Error listing incidents for '%s': %v\n", rest[0], err)
		os.Exit(1)
	}

	if len(incidents) == 0 {
		fmt.Println("No incidents")
		return
	}
	for _, incident := range incidents {
		fmt.Printf("%s  %-13s %-8s %-12s %s\n",
			incident.ID, incident.Status, incident.Severity, incident.KillChainStage, incident.Summary)
	}
}

func handleBlocked(args []string) {
	serverURL, _, rest := parseFlags("blocked", args)
	if len(rest) != 1 {
		fmt.Println("Usage: praetorctl blocked <org>")
		os.Exit(1)
	}

	client := NewPraetorClient(serverURL)
	blocked, err := client.ListBlocked(rest[0])
	if err != nil {
		fmt.Printf("Error listing blocked actors for '%s': %v\n", rest[0], err)
		os.Exit(1)
	}

	if len(blocked) == 0 {
		fmt.Println("No blocked actors")
		return
	}
	for _, actor := range blocked {
		fmt.Printf("%-40s blocked %s  %s\n", actor.IP, actor.BlockedAt.Format("2006-01-02 15:04"), actor.Reason)
	}
}

func handleTraps(args []string) {
	serverURL, _, rest := parseFlags("traps", args)
	if len(rest) != 1 {
		fmt.Println("Usage: praetorctl traps <org>")
		os.Exit(1)
	}

	client := NewPraetorClient(serverURL)
	traps, err := client.ListTraps(rest[0])
	if err != nil {
		fmt.Printf("Error listing traps for '%s': %v\n", rest[0], err)
		os.Exit(1)
	}

	if len(traps) == 0 {
		fmt.Println("No traps")
		return
	}
	for _, trap := range traps {
		fmt.Printf("%s  %-12s %-20s triggered %d times\n", trap.Token, trap.AssetType, trap.Label, trap.TriggeredCount)
	}
}
