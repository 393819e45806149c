// panelctl is an operator CLI for a ForgePanel instance. The attach command
// drives the full console sync core: connection state machine, status
// projection, and the optimistic debug toggle.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/forgepanel/backend/internal/client"
)

func main() {
	baseURL := flag.String("url", "http://127.0.0.1:8080", "Panel base URL")
	token := flag.String("token", os.Getenv("FORGEPANEL_TOKEN"), "Auth token")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	api := client.NewAPI(*baseURL, *token)
	ctx := context.Background()

	var err error
	switch args[0] {
	case "attach":
		err = attach(client.Target{BaseURL: *baseURL, Token: *token})
	case "status":
		err = status(ctx, api)
	case "debug":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			usage()
			os.Exit(2)
		}
		err = toggleDebug(ctx, api, args[1] == "on")
	case "server":
		if len(args) != 2 {
			usage()
			os.Exit(2)
		}
		switch args[1] {
		case "install":
			err = api.InstallServer(ctx)
		case "start":
			err = api.StartServer(ctx)
		case "stop":
			err = api.StopServer(ctx)
		default:
			usage()
			os.Exit(2)
		}
	case "mods":
		err = mods(ctx, api)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: panelctl [-url URL] [-token TOKEN] <command>

commands:
  attach                 live console (type commands, ctrl-d to detach)
  status                 show server state and stats
  debug on|off           toggle debug logging
  server install|start|stop
  mods                   list installed mods`)
}

func attach(target client.Target) error {
	registry := client.NewRegistry()
	session := registry.Open(target)
	defer session.Close()

	transitions, cancel := session.Transitions()
	defer cancel()

	go func() {
		for st := range transitions {
			status := client.Project(st, session.ServerState())
			fmt.Printf("-- %s\n", status.Label)
			if st == client.StateForbidden {
				fmt.Println("-- re-run with a valid token")
			}
		}
	}()

	go func() {
		for batch := range session.Lines() {
			for _, line := range batch {
				fmt.Println(line)
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		if cmd == "" {
			continue
		}
		if err := session.SendCommand(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "send failed: %v\n", err)
		}
	}
	return scanner.Err()
}

func status(ctx context.Context, api *client.API) error {
	st, err := api.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("state:    %s\n", st.State)
	if st.PID != 0 {
		fmt.Printf("pid:      %d\n", st.PID)
		fmt.Printf("uptime:   %ds\n", st.UptimeSeconds)
		fmt.Printf("cpu:      %.1f%%\n", st.CPUPercent)
		fmt.Printf("rss:      %d MiB\n", st.MemoryRSS/(1<<20))
	}
	fmt.Printf("restarts: %d\n", st.Restarts)
	if st.LastError != "" {
		fmt.Printf("error:    %s\n", st.LastError)
	}
	return nil
}

// toggleDebug uses the optimistic coordinator rather than a bare API call so
// the CLI reconciles exactly the way the browser dashboard does.
func toggleDebug(ctx context.Context, api *client.API, enabled bool) error {
	coordinator := client.NewCoordinator(client.NewSettingsCache())
	coordinator.Register("debug", client.BoolSetting{
		Enable:  api.EnableDebug,
		Disable: api.DisableDebug,
		Refresh: api.DebugStatus,
	})

	updates, cancel := coordinator.Cache().Subscribe()
	defer cancel()

	if err := coordinator.SetBool(ctx, "debug", enabled); err != nil {
		return err
	}
	for entry := range updates {
		if entry.PendingValue == nil {
			fmt.Printf("debug logging: %v\n", entry.ServerValue)
			return nil
		}
	}
	return nil
}

func mods(ctx context.Context, api *client.API) error {
	list, err := api.ListMods(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("no mods installed")
		return nil
	}
	for _, m := range list {
		state := "enabled"
		if !m.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-36s  %-20s %-10s %s\n", m.ID, m.Name, m.Version, state)
	}
	return nil
}
