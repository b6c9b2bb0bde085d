package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/graphgate/graphgate/internal/discovery"
	"github.com/graphgate/graphgate/internal/eventbus"
	"github.com/graphgate/graphgate/internal/mesh"
	"github.com/graphgate/graphgate/internal/openapi"
	"github.com/graphgate/graphgate/internal/otel"
	"github.com/graphgate/graphgate/internal/resttp"
	"github.com/graphgate/graphgate/internal/schema"
	"github.com/graphgate/graphgate/internal/server"
)

const rootUsage = `graphgate - federated GraphQL gateway over REST/OpenAPI services

USAGE:
  graphgate <command> [flags]

COMMANDS:
  serve            Run the HTTP gateway that federates discovered services
  compile-sdl      Probe backends once, merge their schemas, print the SDL
  help             Show help for any command
`

const serveUsage = `serve FLAGS:
  -mesh.service <name=baseURL>        Register a backend service. Repeatable; at
                                      least one mapping required.
  -mesh.interval <duration>           Discovery poll interval (default: 30s)
  -mesh.probe-timeout <duration>      Per-probe timeout for document fetches (default: 5s)
  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout, e.g. 10s (default: 10s)
  -server.cors <origin>               Allowed CORS origin. Repeatable
  -resolver.timeout <duration>        Outbound call timeout (default: 30s)
  -resolver.forward-header <name>     Forward an inbound header to backends.
                                      Repeatable; defaults to authorization,
                                      x-api-key, x-user-id, x-tenant-id
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: graphgate)
`

const compileSDLUsage = `compile-sdl FLAGS:
  -mesh.service <name=baseURL>  Register a backend service. Repeatable; at
                                least one mapping required.
  -out <file>                   Write merged SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}
	cmd := args[0]
	cmdArgs := args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "compile-sdl":
		return cmdCompileSDL(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "compile-sdl":
		fmt.Print(compileSDLUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// serviceFlag collects repeatable name=baseURL mappings.
type serviceFlag struct {
	m map[string]string
}

func (s *serviceFlag) String() string { return "" }

func (s *serviceFlag) Set(v string) error {
	parts := strings.SplitN(v, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid service mapping %q", v)
	}
	name := strings.TrimSpace(parts[0])
	baseURL := strings.TrimSpace(parts[1])
	if name == "" || baseURL == "" {
		return fmt.Errorf("invalid service mapping %q", v)
	}
	if s.m == nil {
		s.m = map[string]string{}
	}
	s.m[name] = baseURL
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func cmdServe(args []string) error {
	addr := ":8080"
	pretty := false
	requestTimeout := 10 * time.Second
	interval := 30 * time.Second
	probeTimeout := 5 * time.Second
	resolverTimeout := 30 * time.Second
	otelEndpoint := ""
	otelService := "graphgate"
	var services serviceFlag
	var corsOrigins stringListFlag
	var forwardHeaders stringListFlag

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&services, "mesh.service", "Register a backend service")
	fs.DurationVar(&interval, "mesh.interval", interval, "Discovery poll interval")
	fs.DurationVar(&probeTimeout, "mesh.probe-timeout", probeTimeout, "Per-probe timeout")
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", pretty, "Pretty-print JSON responses")
	fs.DurationVar(&requestTimeout, "server.timeout", requestTimeout, "Per-request timeout")
	fs.Var(&corsOrigins, "server.cors", "Allowed CORS origin")
	fs.DurationVar(&resolverTimeout, "resolver.timeout", resolverTimeout, "Outbound call timeout")
	fs.Var(&forwardHeaders, "resolver.forward-header", "Forward an inbound header to backends")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	if len(services.m) == 0 {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("at least one -mesh.service mapping is required")
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = log.Sync() }()

	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(otelEndpoint, otelService)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	resolverOpts := []resttp.Option{resttp.WithCallTimeout(resolverTimeout)}
	if len(forwardHeaders) > 0 {
		resolverOpts = append(resolverOpts, resttp.WithForwardHeaders(forwardHeaders...))
	}
	resolver := resttp.New(resolverOpts...)
	manager := mesh.NewManager(resolver, mesh.WithLogger(log))

	fetcher := openapi.NewFetcher(openapi.WithProbeTimeout(probeTimeout))
	provider := discovery.NewStaticProvider(services.m, fetcher, log)
	loop := discovery.NewLoop(provider, manager, interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go loop.Run(ctx)

	sopts := []server.Option{server.WithTimeout(requestTimeout)}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(corsOrigins) > 0 {
		sopts = append(sopts, server.WithCORS(corsOrigins...))
	}
	h := server.New(manager, loop.Force, log, sopts...)

	srv := &http.Server{Addr: addr, Handler: h}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening", zap.String("addr", addr), zap.Int("services", len(services.m)))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func cmdCompileSDL(args []string) error {
	outFile := ""
	probeTimeout := 5 * time.Second
	var services serviceFlag

	fs := flag.NewFlagSet("compile-sdl", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.Var(&services, "mesh.service", "Register a backend service")
	fs.DurationVar(&probeTimeout, "mesh.probe-timeout", probeTimeout, "Per-probe timeout")
	fs.StringVar(&outFile, "out", outFile, "Write merged SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, compileSDLUsage)
		return err
	}
	if len(services.m) == 0 {
		fmt.Fprint(os.Stderr, compileSDLUsage)
		return fmt.Errorf("at least one -mesh.service mapping is required")
	}

	resolver := resttp.New()
	manager := mesh.NewManager(resolver)
	fetcher := openapi.NewFetcher(openapi.WithProbeTimeout(probeTimeout))
	provider := discovery.NewStaticProvider(services.m, fetcher, nil)

	ctx := context.Background()
	manager.UpdateConfiguration(ctx, provider.Services(ctx))
	cfg := manager.GetSchema()
	if cfg == nil {
		return fmt.Errorf("no schema could be built from the configured services")
	}
	sdl := schema.Render(cfg.Schema)
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}
