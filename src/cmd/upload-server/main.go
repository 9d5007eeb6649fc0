package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"screenshotr/src/logutil"
	"screenshotr/src/serverconfig"
	"screenshotr/src/uploadserver"
)

type serverOptions struct {
	configPath string
	listenAddr string
	verbose    bool
}

func main() {
	opts := &serverOptions{}
	if err := newRootCmd(opts).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(opts *serverOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "upload-server",
		Short:         "Receive screenshot uploads and store them under unique names",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			lis, err := net.Listen("tcp", cfg.ListenAddr)
			if err != nil {
				return err
			}
			return serve(ctx, cfg, lis)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to the YAML config (default $CONFIG_PATH or ./config.yaml)")
	cmd.Flags().StringVar(&opts.listenAddr, "listen", "", "Listen address (overrides listen_addr)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", true, "Log to stderr")
	return cmd
}

func loadConfig(opts serverOptions) (*serverconfig.Config, error) {
	logutil.SetupStderr(opts.verbose)

	var (
		cfg *serverconfig.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = serverconfig.LoadFile(opts.configPath)
	} else {
		cfg, err = serverconfig.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.listenAddr != "" {
		cfg.ListenAddr = opts.listenAddr
	}
	return cfg, nil
}

// serve runs the upload server on lis until ctx is done, then shuts down
// gracefully.
func serve(ctx context.Context, cfg *serverconfig.Config, lis net.Listener) error {
	handler, srv, err := uploadserver.NewServer(cfg)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer srv.Close()

	if cfg.MaxConnections > 0 {
		lis = netutil.LimitListener(lis, cfg.MaxConnections)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("upload-server listening on %s (dir=%s pattern=%s naming=%s)", lis.Addr(), cfg.UploadDir, cfg.FilePattern, cfg.Naming)
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("upload-server shutdown error: %v", err)
			return err
		}
		return nil
	})
	return g.Wait()
}
