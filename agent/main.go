package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"mtucontrol/api"
	"mtucontrol/discovery"
	"mtucontrol/logsync"
	"mtucontrol/markstore"
	"mtucontrol/push"
)

var (
	deviceFlag = flag.String("device", getEnv("MTU_DEVICE", ""), "Device base URL (empty: discover over mDNS)")
	stateFlag  = flag.String("state", getEnv("MTU_STATE", "mtu-agent.db"), "Path of the log mark database")
	redisFlag  = flag.String("redis", getEnv("REDIS_ADDR", ""), "Redis address for the log mark (overrides -state)")
	reconnect  = flag.Bool("reconnect", getEnv("MTU_RECONNECT", "true") == "true", "Redial the log stream when it drops")
	timeout    = flag.Duration("timeout", envDuration("MTU_REQUEST_TIMEOUT"), "Per-request timeout (0: none)")
)

// console serializes output from the REPL, command callbacks and the log
// stream.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func (c *console) println(lines ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		fmt.Fprintln(c.out, l)
	}
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := *deviceFlag
	if base == "" {
		log.Println("No device configured, browsing mDNS...")
		browseCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		found, err := discovery.Browse(browseCtx, discovery.Service)
		cancel()
		if err != nil {
			log.Fatalf("Could not find a device: %v", err)
		}
		base = found
	}

	client, err := api.New(api.Config{BaseURL: base, HTTPClient: &http.Client{Timeout: *timeout}})
	if err != nil {
		log.Fatalf("%v", err)
	}
	wsURL, err := push.URL(base)
	if err != nil {
		log.Fatalf("%v", err)
	}

	store, err := openStore(ctx, client.BaseURL())
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer store.Close()

	out := &console{out: os.Stdout}
	syncer := logsync.New(logsync.SinkFunc(func(l logsync.Line) {
		out.println(l.Text)
	}))

	keeper := seedFromStore(ctx, store, syncer, log.Default())
	log.Printf("Connected to %s, rendering logs after #%d", client.BaseURL(), syncer.Mark())

	channel := push.New(push.Config{URL: wsURL, Reconnect: *reconnect}, keeper)
	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		if err := channel.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Log stream stopped: %v", err)
		}
	}()

	scope := client.NewScope(ctx)
	repl(ctx, os.Stdin, out, scope, func() []string {
		state := "disconnected"
		if channel.Connected() {
			state = "connected"
		}
		return append(keeper.status(), "Log stream: "+state)
	})

	// Teardown: in-flight requests are cancelled and their results dropped.
	scope.Close()
	stop()
	<-streamDone
}

func repl(ctx context.Context, in io.Reader, out *console, scope *api.Scope, status func() []string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Printf("Error reading input: %v", err)
		}
	}()

	out.println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	for {
		var line string
		select {
		case <-ctx.Done():
			return
		case l, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "quit", "exit", "q":
			out.println("Goodbye!")
			return
		case "help", "?":
			out.println(helpText...)
			continue
		case "status", "mark":
			out.println(status()...)
			continue
		}

		it, err := parseIntent(fields)
		if err != nil {
			out.println(err.Error())
			continue
		}
		if it.joystick {
			scope.Joystick(func(r api.JoystickResult) { out.println(r.Lines()...) })
			continue
		}
		scope.Go(it.req, func(r api.Result) { out.println(r.Display()) })
	}
}

var helpText = []string{
	"",
	"Available commands:",
	"  init <motor>                          - Initialize a motor driver",
	"  data <motor>                          - Read motor driver state",
	"  config <motor> <steps> <current>      - Set microsteps and current",
	"  move <motor> <steps> <dir 1|0> <rpm>  - Move by steps (dir 1 = positive)",
	"  run <motor> <speed>                   - Run at constant speed",
	"  hold <motor> / release <motor>        - Hold or release a motor",
	"  joy                                   - Read joystick axes and buttons",
	"  joy <command>                         - Send a joystick command (e.g. demo)",
	"  status                                - Show last log, device memory, stream state",
	"  quit/exit/q                           - Exit the program",
	"",
}

func openStore(ctx context.Context, key string) (markstore.Store, error) {
	if *redisFlag != "" {
		return markstore.DialRedis(ctx, *redisFlag, "mtucontrol:mark:"+key)
	}
	return markstore.OpenBolt(*stateFlag, key)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func envDuration(key string) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Ignoring invalid %s %q: %v", key, v, err)
		return 0
	}
	return d
}
