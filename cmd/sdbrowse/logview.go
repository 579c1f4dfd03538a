package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/miekg/dns"

	"github.com/sdbrowse/sdbrowse-go/pkg/log"
)

func runLog(args []string) {
	fs := newFlagSet("log", `sdbrowse log - View a recorded event log

Usage:
  sdbrowse log [flags] <file.sdlog>
`)
	session := fs.String("session", "", "Filter by scan session ID")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (query, answer, state, error)")
	serviceType := fs.String("type", "", "Filter by service type")
	instance := fs.String("instance", "", "Filter by instance name")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter := log.Filter{
		SessionID:   *session,
		ServiceType: *serviceType,
		Instance:    *instance,
	}
	if *direction != "" {
		d, err := parseDirection(*direction)
		if err != nil {
			fatal(err)
		}
		filter.Direction = &d
	}
	if *category != "" {
		c, err := parseCategory(*category)
		if err != nil {
			fatal(err)
		}
		filter.Category = &c
	}

	reader, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fatal(err)
	}
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			fatal(err)
		}
		fmt.Println(formatEvent(event))
		count++
	}
	fmt.Printf("%d event(s)\n", count)
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("unknown direction %q (want in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "query":
		return log.CategoryQuery, nil
	case "answer":
		return log.CategoryAnswer, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category %q (want query, answer, state or error)", s)
	}
}

func formatEvent(event log.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-3s %-6s",
		event.Timestamp.Format("15:04:05.000"), event.Direction, event.Category)

	switch {
	case event.Query != nil:
		fmt.Fprintf(&b, " %s %s", dns.TypeToString[event.Query.RecordType], event.Query.Name)
		if event.Query.Attempt > 0 {
			fmt.Fprintf(&b, " (attempt %d)", event.Query.Attempt)
		}
	case event.Answer != nil:
		fmt.Fprintf(&b, " %d answer(s) from %s", event.Answer.Answers, event.RemoteAddr)
		if event.Answer.Goodbye {
			b.WriteString(" [goodbye]")
		}
	case event.StateChange != nil:
		sc := event.StateChange
		fmt.Fprintf(&b, " %s", sc.Entity)
		if sc.OldState != "" {
			fmt.Fprintf(&b, " %s ->", sc.OldState)
		}
		fmt.Fprintf(&b, " %s", sc.NewState)
		if event.Instance != "" {
			fmt.Fprintf(&b, " %s", event.Instance)
		} else if event.ServiceType != "" {
			fmt.Fprintf(&b, " %s", event.ServiceType)
		}
		if sc.Reason != "" {
			fmt.Fprintf(&b, " (%s)", sc.Reason)
		}
	case event.Error != nil:
		fmt.Fprintf(&b, " %s: %s", event.Error.Code, event.Error.Message)
		if event.Error.Context != "" {
			fmt.Fprintf(&b, " (%s)", event.Error.Context)
		}
	}
	return b.String()
}
