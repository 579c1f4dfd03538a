// Package interactive provides the interactive shell for sdbrowse.
package interactive

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sdbrowse/sdbrowse-go/pkg/discovery"
	"github.com/sdbrowse/sdbrowse-go/pkg/dnssd"
)

// Shell drives a scan controller from an interactive prompt.
type Shell struct {
	controller *discovery.Controller
	presets    map[string][]string
	rl         *readline.Instance
}

// New creates the shell around a controller. presets maps preset names
// to the service types they query.
func New(controller *discovery.Controller, presets map[string][]string) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sdbrowse> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Shell{
		controller: controller,
		presets:    presets,
		rl:         rl,
	}

	controller.OnStateChange(func(old, next discovery.SessionState) {
		fmt.Fprintf(rl.Stdout(), "[session %s -> %s]\n", old, next)
	})

	return s, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the command loop. It returns when the user exits.
func (s *Shell) Run() {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			s.stopIfRunning()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "start", "scan":
			s.cmdStart()

		case "stop":
			s.cmdStop()

		case "rescan", "refresh":
			s.cmdRescan()

		case "types", "t":
			s.cmdTypes()

		case "instances", "ls":
			s.cmdInstances(args)

		case "show", "info":
			s.cmdShow(args)

		case "query", "q":
			s.cmdQuery(args)

		case "preset", "p":
			s.cmdPreset(args)

		case "status":
			s.cmdStatus()

		case "quit", "exit":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			s.stopIfRunning()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  start                Start scanning
  stop                 Stop scanning and clear results
  rescan               Restart the scan from scratch
  types, t             List discovered service types
  instances <type>     List instances of a service type
  show <type> <name>   Show one instance in detail
  query <type> ...     Query service types manually
  preset <name>        Query a named preset
  status               Show session status
  help, ?              Show this help
  quit                 Exit
`)
}

func (s *Shell) stopIfRunning() {
	if s.controller.State() == discovery.StateRunning {
		s.controller.Stop()
	}
}

func (s *Shell) cmdStart() {
	if err := s.controller.Start(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Cannot start: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Scanning (session %s)\n", s.controller.SessionID())
}

func (s *Shell) cmdStop() {
	if err := s.controller.Stop(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Cannot stop: %v\n", err)
	}
}

func (s *Shell) cmdRescan() {
	if err := s.controller.Rescan(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Cannot rescan: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Rescanning (session %s)\n", s.controller.SessionID())
}

func (s *Shell) cmdTypes() {
	cache := s.controller.Cache()
	if cache == nil {
		fmt.Fprintln(s.rl.Stdout(), "Not scanning. Use 'start' first.")
		return
	}
	types := cache.Types()
	if len(types) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No service types discovered yet.")
		return
	}
	for _, serviceType := range types {
		fmt.Fprintf(s.rl.Stdout(), "  %-40s %d instance(s)\n",
			dnssd.ShortenTypeName(serviceType), len(cache.Instances(serviceType)))
	}
}

func (s *Shell) cmdInstances(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: instances <service-type>")
		return
	}
	cache := s.controller.Cache()
	if cache == nil {
		fmt.Fprintln(s.rl.Stdout(), "Not scanning. Use 'start' first.")
		return
	}

	serviceType := dnssd.NormalizeServiceType(args[0])
	instances := cache.Instances(serviceType)
	if len(instances) == 0 {
		fmt.Fprintf(s.rl.Stdout(), "No instances of %s\n", serviceType)
		return
	}
	for _, si := range instances {
		if si.Status == dnssd.StatusResolved {
			fmt.Fprintf(s.rl.Stdout(), "  %-50s %s\n", si.Key.Name, strings.Join(si.Endpoints(), ", "))
		} else {
			fmt.Fprintf(s.rl.Stdout(), "  %-50s (unresolved)\n", si.Key.Name)
		}
	}
}

func (s *Shell) cmdShow(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: show <service-type> <instance-name>")
		return
	}
	cache := s.controller.Cache()
	if cache == nil {
		fmt.Fprintln(s.rl.Stdout(), "Not scanning. Use 'start' first.")
		return
	}

	serviceType := dnssd.NormalizeServiceType(args[0])
	si, ok := cache.Instance(serviceType, args[1])
	if !ok {
		// Instance names are often typed without the type suffix.
		si, ok = cache.Instance(serviceType, args[1]+"."+serviceType)
	}
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "Instance not found: %s\n", args[1])
		return
	}

	out := s.rl.Stdout()
	fmt.Fprintf(out, "Name:      %s\n", si.Key.Name)
	fmt.Fprintf(out, "Type:      %s\n", si.Key.Type)
	fmt.Fprintf(out, "Status:    %s\n", si.Status)
	fmt.Fprintf(out, "Host:      %s\n", si.Host)
	fmt.Fprintf(out, "Port:      %d\n", si.Port)
	for _, ep := range si.Endpoints() {
		fmt.Fprintf(out, "Endpoint:  %s\n", ep)
	}
	for _, kv := range si.TXT.Strings() {
		fmt.Fprintf(out, "TXT:       %s\n", kv)
	}
}

func (s *Shell) cmdQuery(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: query <service-type> [<service-type> ...]")
		return
	}
	for _, arg := range args {
		if err := s.controller.ManualQuery(arg); err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Query %q failed: %v\n", arg, err)
			return
		}
	}
	fmt.Fprintf(s.rl.Stdout(), "Queried %d type(s)\n", len(args))
}

func (s *Shell) cmdPreset(args []string) {
	if len(args) < 1 {
		names := make([]string, 0, len(s.presets))
		for name := range s.presets {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(s.rl.Stdout(), "Usage: preset <name>  (available: %s)\n", strings.Join(names, ", "))
		return
	}

	types, ok := s.presets[args[0]]
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "Unknown preset: %s\n", args[0])
		return
	}
	if err := s.controller.QueryPresets(types); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Preset query failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Queried preset %q (%d types)\n", args[0], len(types))
}

func (s *Shell) cmdStatus() {
	out := s.rl.Stdout()
	fmt.Fprintf(out, "State:    %s\n", s.controller.State())
	if id := s.controller.SessionID(); id != "" {
		fmt.Fprintf(out, "Session:  %s\n", id)
	}
	if cache := s.controller.Cache(); cache != nil {
		fmt.Fprintf(out, "Types:    %d\n", len(cache.Types()))
		fmt.Fprintf(out, "Services: %d\n", cache.Len())
	}
}
