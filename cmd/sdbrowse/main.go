// Command sdbrowse is a live DNS-SD service browser for mDNS networks.
//
// It enumerates service types through the DNS-SD meta-query, browses the
// instances of every discovered type and resolves each instance to host,
// port, addresses and TXT properties.
//
// Usage:
//
//	sdbrowse <command> [flags]
//
// Commands:
//
//	scan         Scan continuously and print discoveries as they happen
//	query        Query specific service types and print the results
//	interfaces   List the network interfaces available for scanning
//	interactive  Start the interactive browser shell
//	log          View a recorded event log
//	version      Print the version
//
// Examples:
//
//	# Scan until interrupted
//	sdbrowse scan
//
//	# Scan a single interface, recording an event log
//	sdbrowse scan -interface eth0 -log scan.sdlog
//
//	# Query printer services for five seconds
//	sdbrowse query -wait 5s _ipp._tcp
//
//	# Query the Dante audio preset
//	sdbrowse query -preset dante
//
//	# Show the queries recorded in an event log
//	sdbrowse log -category query scan.sdlog
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sdbrowse/sdbrowse-go/cmd/sdbrowse/interactive"
	"github.com/sdbrowse/sdbrowse-go/pkg/discovery"
	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
	"github.com/sdbrowse/sdbrowse-go/pkg/log"
	"github.com/sdbrowse/sdbrowse-go/pkg/transport"
)

const version = "0.3.0"

const usage = `sdbrowse - Live DNS-SD Service Browser

Usage:
  sdbrowse <command> [flags]

Commands:
  scan         Scan continuously and print discoveries as they happen
  query        Query specific service types and print the results
  interfaces   List the network interfaces available for scanning
  interactive  Start the interactive browser shell
  log          View a recorded event log
  version      Print the version

Use "sdbrowse <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "scan":
		runScan(args)
	case "query":
		runQuery(args)
	case "interfaces":
		runInterfaces()
	case "interactive":
		runInteractive(args)
	case "log":
		runLog(args)
	case "version":
		fmt.Printf("sdbrowse %s\n", version)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// buildController assembles a controller from the scan configuration
// and optional overrides. The returned closer flushes the event log.
func buildController(configPath, iface, logPath string, verbose bool) (*discovery.Controller, discovery.ScanConfig, func(), error) {
	scanConfig, err := discovery.LoadScanConfig(configPath)
	if err != nil {
		return nil, scanConfig, nil, err
	}
	if iface != "" {
		scanConfig.Interfaces = strings.Split(iface, ",")
	}
	if logPath != "" {
		scanConfig.EventLog = logPath
	}

	config := scanConfig.ControllerConfig()
	closer := func() {}

	var loggers []log.Logger
	if scanConfig.EventLog != "" {
		fileLogger, err := log.NewFileLogger(scanConfig.EventLog)
		if err != nil {
			return nil, scanConfig, nil, fmt.Errorf("opening event log: %w", err)
		}
		loggers = append(loggers, fileLogger)
		closer = func() { fileLogger.Close() }
	}
	if verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}
	switch len(loggers) {
	case 0:
	case 1:
		config.Logger = loggers[0]
	default:
		config.Logger = log.NewMultiLogger(loggers...)
	}

	return discovery.NewController(config), scanConfig, closer, nil
}

func runScan(args []string) {
	fs := newFlagSet("scan", `sdbrowse scan - Scan continuously and print discoveries

Usage:
  sdbrowse scan [flags]
`)
	configPath := fs.String("config", defaultConfigPath(), "Scan configuration file")
	iface := fs.String("interface", "", "Comma-separated interface names (default all)")
	logPath := fs.String("log", "", "Write a CBOR event log to this file")
	verbose := fs.Bool("verbose", false, "Print discovery events to stderr")
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	controller, _, closeLog, err := buildController(*configPath, *iface, *logPath, *verbose)
	if err != nil {
		fatal(err)
	}
	defer closeLog()

	if err := controller.Start(); err != nil {
		fatal(err)
	}
	fmt.Printf("Scanning (session %s), press Ctrl+C to stop...\n", controller.SessionID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	printer := newScanPrinter()
	for {
		select {
		case <-controller.Changes():
			printer.printNew(controller.Cache())
		case <-sig:
			fmt.Println("\nStopping...")
			controller.Stop()
			return
		case <-timeout:
			printer.printNew(controller.Cache())
			controller.Stop()
			return
		}
	}
}

func runQuery(args []string) {
	fs := newFlagSet("query", `sdbrowse query - Query specific service types

Usage:
  sdbrowse query [flags] <service-type> [<service-type> ...]
`)
	configPath := fs.String("config", defaultConfigPath(), "Scan configuration file")
	iface := fs.String("interface", "", "Comma-separated interface names (default all)")
	logPath := fs.String("log", "", "Write a CBOR event log to this file")
	verbose := fs.Bool("verbose", false, "Print discovery events to stderr")
	preset := fs.String("preset", "", "Query a named preset from the configuration")
	wait := fs.Duration("wait", 3*time.Second, "How long to collect answers")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	controller, scanConfig, closeLog, err := buildController(*configPath, *iface, *logPath, *verbose)
	if err != nil {
		fatal(err)
	}
	defer closeLog()

	types := fs.Args()
	if *preset != "" {
		presetTypes, ok := scanConfig.Presets[*preset]
		if !ok {
			fatal(fmt.Errorf("unknown preset %q", *preset))
		}
		types = append(types, presetTypes...)
	}
	if len(types) == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one service type or -preset required")
		fs.Usage()
		os.Exit(1)
	}

	if err := controller.Start(); err != nil {
		fatal(err)
	}
	defer controller.Stop()

	if err := controller.QueryPresets(types); err != nil {
		fatal(err)
	}

	time.Sleep(*wait)
	printResults(controller.Cache())
}

func runInterfaces() {
	infos, err := transport.Interfaces()
	if err != nil {
		fatal(err)
	}
	if len(infos) == 0 {
		fmt.Println("No multicast-capable interfaces found.")
		return
	}
	for _, info := range infos {
		fmt.Println(info)
	}
}

func runInteractive(args []string) {
	fs := newFlagSet("interactive", `sdbrowse interactive - Interactive browser shell

Usage:
  sdbrowse interactive [flags]
`)
	configPath := fs.String("config", defaultConfigPath(), "Scan configuration file")
	iface := fs.String("interface", "", "Comma-separated interface names (default all)")
	logPath := fs.String("log", "", "Write a CBOR event log to this file")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	controller, scanConfig, closeLog, err := buildController(*configPath, *iface, *logPath, false)
	if err != nil {
		fatal(err)
	}
	defer closeLog()

	shell, err := interactive.New(controller, scanConfig.Presets)
	if err != nil {
		fatal(err)
	}
	shell.Run()
}

// scanPrinter prints each type and resolved instance exactly once.
type scanPrinter struct {
	types     map[string]bool
	instances map[dnssd.InstanceKey]bool
}

func newScanPrinter() *scanPrinter {
	return &scanPrinter{
		types:     make(map[string]bool),
		instances: make(map[dnssd.InstanceKey]bool),
	}
}

func (p *scanPrinter) printNew(cache *discovery.Cache) {
	if cache == nil {
		return
	}
	for _, serviceType := range cache.Types() {
		if !p.types[serviceType] {
			p.types[serviceType] = true
			fmt.Printf("+ type     %s\n", dnssd.ShortenTypeName(serviceType))
		}
		for _, si := range cache.Instances(serviceType) {
			if si.Status != dnssd.StatusResolved || p.instances[si.Key] {
				continue
			}
			p.instances[si.Key] = true
			fmt.Printf("+ instance %s -> %s\n", si.Key.Name, strings.Join(si.Endpoints(), ", "))
		}
	}
}

func printResults(cache *discovery.Cache) {
	if cache == nil {
		return
	}
	types := cache.Types()
	if len(types) == 0 {
		fmt.Println("No services found.")
		return
	}
	for _, serviceType := range types {
		instances := cache.Instances(serviceType)
		fmt.Printf("%s (%d)\n", serviceType, len(instances))
		for _, si := range instances {
			if si.Status == dnssd.StatusResolved {
				fmt.Printf("  %s\n    %s\n", si.Key.Name, strings.Join(si.Endpoints(), ", "))
			} else {
				fmt.Printf("  %s (unresolved)\n", si.Key.Name)
			}
			for _, kv := range si.TXT.Strings() {
				fmt.Printf("    txt %s\n", kv)
			}
		}
	}
}

func newFlagSet(name, header string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, header)
		fmt.Fprintln(os.Stderr, "\nFlags:")
		fs.PrintDefaults()
	}
	return fs
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sdbrowse.yaml"
	}
	return home + "/.config/sdbrowse/scan.yaml"
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
