package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/matheus3301/chatsync/internal/admin"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/instance"
	"github.com/matheus3301/chatsync/internal/lock"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Commands that do not need a running daemon.
	switch args[0] {
	case "instances":
		cmdInstances(*jsonFlag)
		return
	case "config":
		cmdConfig(args[1:])
		return
	}

	socketPath := instance.SocketPath(name)
	if cfg, err := config.LoadOrDefault(instance.ConfigPath()); err == nil && cfg.Server.AdminSocket != "" {
		socketPath = cfg.Server.AdminSocket
	}
	c, err := admin.Dial(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, name, *jsonFlag)
	case "online":
		cmdOnline(ctx, c, *jsonFlag)
	case "user":
		if len(args) < 4 || args[1] != "add" {
			fmt.Fprintln(os.Stderr, "usage: chatctl user add <full name> <email> [id]")
			os.Exit(1)
		}
		id := ""
		if len(args) > 4 {
			id = args[4]
		}
		cmdUserAdd(ctx, c, args[2], args[3], id, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--instance <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                          Show daemon status")
	fmt.Fprintln(os.Stderr, "  online                          List connected users")
	fmt.Fprintln(os.Stderr, "  user add <name> <email> [id]    Register a user")
	fmt.Fprintln(os.Stderr, "  instances                       List known instances")
	fmt.Fprintln(os.Stderr, "  config init                     Write the default config file")
}

func cmdStatus(ctx context.Context, c *admin.Client, name string, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("Instance:    %s (%v)\n", name, st["instance"])
	fmt.Printf("Uptime:      %v\n", time.Duration(toInt(st["uptime_ms"]))*time.Millisecond)
	fmt.Printf("Connections: %d\n", toInt(st["connections"]))
	fmt.Printf("Online:      %d\n", toInt(st["online"]))
	fmt.Printf("Store:       %v (%v)\n", st["store"], st["store_ok"])
}

func cmdOnline(ctx context.Context, c *admin.Client, jsonOut bool) {
	ids, err := c.OnlineUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(ids)
		return
	}
	if len(ids) == 0 {
		fmt.Println("No users online.")
		return
	}
	for _, id := range ids {
		fmt.Println(id)
	}
}

func cmdUserAdd(ctx context.Context, c *admin.Client, fullName, email, id string, jsonOut bool) {
	created, err := c.CreateUser(ctx, id, fullName, email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(map[string]string{"id": created})
		return
	}
	fmt.Printf("Created user %s\n", created)
}

func cmdInstances(jsonOut bool) {
	type row struct {
		Name    string `json:"name"`
		Path    string `json:"path"`
		Running bool   `json:"running"`
		PID     int    `json:"pid,omitempty"`
	}
	entries, err := os.ReadDir(filepath.Join(instance.BaseDir(), "instances"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var rows []row
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		r := row{Name: e.Name(), Path: instance.Dir(e.Name())}
		if h, err := lock.ReadHolder(r.Path); err == nil && h.PID > 0 {
			r.Running, r.PID = true, h.PID
		}
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	if jsonOut {
		outputJSON(rows)
		return
	}
	if len(rows) == 0 {
		fmt.Println("No instances found.")
		return
	}
	for _, r := range rows {
		state := "stopped"
		if r.Running {
			state = fmt.Sprintf("running, pid %d", r.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", r.Name, r.Path, state)
	}
}

func cmdConfig(args []string) {
	if len(args) == 0 || args[0] != "init" {
		fmt.Fprintln(os.Stderr, "usage: chatctl config init")
		os.Exit(1)
	}
	path := instance.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "error: %s already exists\n", path)
		os.Exit(1)
	}
	if err := config.Save(path, config.Default()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", path)
}

func toInt(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
