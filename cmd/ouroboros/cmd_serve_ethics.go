package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/ouroboros/internal/adjust"
	"github.com/danielpatrickdp/ouroboros/internal/ethics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func newServeEthicsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-ethics",
		Short: "Serve an ethical adjuster over gRPC",
		Long: `Serve the weakness engine (with --profile) or the identity adjuster over
gRPC so that runs configured with ethics mode "remote" can use it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer logger.Sync()

			addr, _ := cmd.Flags().GetString("addr")
			profile, _ := cmd.Flags().GetString("profile")

			var adj adjust.EthicalAdjuster = ethics.Identity
			name := "identity"
			if profile != "" {
				eng, err := loadWeaknessEngine(profile)
				if err != nil {
					return err
				}
				adj, name = eng, "profile"
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("ethics service listening",
				zap.String("addr", lis.Addr().String()),
				zap.String("adjuster", name))
			return serveEthics(ctx, lis, adj)
		},
	}

	cmd.Flags().String("addr", ":50061", "Listen address")
	cmd.Flags().String("profile", "", "Weakness profile (YAML or JSON); identity when empty")
	return cmd
}

// serveEthics serves adj on lis until ctx is done.
func serveEthics(ctx context.Context, lis net.Listener, adj adjust.EthicalAdjuster) error {
	srv := grpc.NewServer()
	ethics.RegisterEthicsServer(srv, adj)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	select {
	case <-ctx.Done():
		srv.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}
