// Command noeticd runs the knowledge-graph inference service: it loads
// configuration and seed documents, then serves the HTTP and gRPC
// bridges concurrently over one shared engine (spec.md §4.J, §6).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"noetic/internal/bridge/httpapi"
	"noetic/internal/bridge/rpc"
	"noetic/internal/config"
	"noetic/internal/engine"
	"noetic/internal/logging"
	"noetic/internal/render"
	"noetic/internal/seed"
	"noetic/internal/shape"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "noeticd",
	Short: "noeticd - knowledge-graph inference service",
	Long: `noeticd is a forward-chaining inference engine over a fact store,
exposed through an HTTP and a gRPC bridge.

Run "noeticd serve" to start the service.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load configuration and seed documents, then serve HTTP and gRPC",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogJSON); err != nil {
		return err
	}
	defer logging.Sync()
	boot := logging.Get(logging.CategoryBoot)

	eng := engine.New(engine.Limits{
		MaxFacts:         cfg.MaxFacts,
		MaxQueryResults:  cfg.MaxQueryResults,
		MaxRadius:        cfg.MaxRadius,
		MaxSubgraphNodes: cfg.MaxSubgraphNodes,
		MaxRulePackBytes: cfg.MaxRulePackBytes,
	})
	shapes := shape.NewRegistry()

	if _, err := seed.LoadRules(eng, cfg.SeedRulesPath); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if err := seed.LoadShapes(shapes, cfg.ShapesPath); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if n, err := seed.LoadKB(eng, cfg.SeedKBPath); err != nil {
		return fmt.Errorf("serve: %w", err)
	} else if n > 0 {
		boot.Infow("seed kb loaded", "facts", n)
	}

	var watcher *shape.Watcher
	if cfg.ShapesPath != "" {
		watcher, err = shape.NewWatcher(cfg.ShapesPath, shapes)
		if err != nil {
			return fmt.Errorf("serve: shape watcher: %w", err)
		}
	}

	renderer := render.New(cfg.RendererCommand)
	httpServer := httpapi.New(eng, shapes, renderer)
	rpcServer := rpc.New(eng, shapes, renderer)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	if watcher != nil {
		g.Go(func() error { return watcher.Start(ctx) })
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: httpServer,
	}
	g.Go(func() error {
		boot.Infow("http bridge listening", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	grpcSrv := grpc.NewServer()
	rpc.Register(grpcSrv, rpcServer)
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.RPCPort))
	if err != nil {
		return fmt.Errorf("rpc bridge: listen: %w", err)
	}
	g.Go(func() error {
		boot.Infow("rpc bridge listening", "port", cfg.RPCPort)
		if err := grpcSrv.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			return fmt.Errorf("rpc bridge: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		grpcSrv.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		boot.Errorw("service stopped with error", "error", err)
		return err
	}
	boot.Infow("service stopped")
	return nil
}
