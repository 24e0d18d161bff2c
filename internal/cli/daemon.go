package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tcfw/tributary/internal/api"
	"github.com/tcfw/tributary/internal/node"
	"github.com/tcfw/tributary/internal/utils/logging"
)

var (
	daemonCmd = &cobra.Command{
		Use:   "daemon",
		RunE:  runDaemon,
		Short: "run the daemon",
	}
)

func runDaemon(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.NewNode(ctx,
		node.WithDefaultOptions(),
	)
	if err != nil {
		return errors.Wrap(err, "initing node")
	}

	errCh := make(chan error, 2)

	go func() {
		if err := n.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	a, err := api.NewAPI(n)
	if err != nil {
		return err
	}

	addr := n.Config().API().Addr
	go func() {
		logging.WithField("addr", addr).Info("starting control api")
		if err := a.ListenAndServe(addr); err != nil {
			errCh <- errors.Wrap(err, "serving api")
		}
	}()

	select {
	case err := <-errCh:
		n.Stop()
		return err
	case <-waitExit(ctx):
		shutdownCtx, done := context.WithTimeout(ctx, 5*time.Second)
		defer done()
		a.Shutdown(shutdownCtx)
		return n.Stop()
	}
}
