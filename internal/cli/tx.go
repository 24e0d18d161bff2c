package cli

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	apipb "github.com/tcfw/tributary/api"
	"github.com/tcfw/tributary/internal/api"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "show the daemon's chain status",
		RunE:  runStatus,
	}

	txCmd = &cobra.Command{
		Use:   "tx",
		Short: "Transaction commands",
	}

	tx_submitCmd = &cobra.Command{
		Use:   "submit [hex]",
		Short: "submit an encoded transaction to the mempool",
		Args:  cobra.ExactArgs(1),
		RunE:  runTxSubmit,
	}

	tx_provideCmd = &cobra.Command{
		Use:   "provide [hex]",
		Short: "provide an encoded provided transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runTxProvide,
	}
)

func withClient(fn func(ctx context.Context, c *api.Client) (interface{}, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := api.NewClient()
	if err != nil {
		return errors.Wrap(err, "constructing client")
	}
	defer c.Close()

	res, err := fn(ctx, c)
	if err != nil {
		return err
	}

	s, _ := json.MarshalIndent(res, "", "  ")
	fmt.Printf("%s\n", s)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withClient(func(ctx context.Context, c *api.Client) (interface{}, error) {
		return c.Control().Status(ctx, &apipb.StatusRequest{})
	})
}

func runTxSubmit(cmd *cobra.Command, args []string) error {
	d, err := hex.DecodeString(args[0])
	if err != nil {
		return errors.Wrap(err, "decoding transaction")
	}

	return withClient(func(ctx context.Context, c *api.Client) (interface{}, error) {
		return c.Control().SubmitTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	})
}

func runTxProvide(cmd *cobra.Command, args []string) error {
	d, err := hex.DecodeString(args[0])
	if err != nil {
		return errors.Wrap(err, "decoding transaction")
	}

	return withClient(func(ctx context.Context, c *api.Client) (interface{}, error) {
		return c.Control().ProvideTransaction(ctx, &apipb.TransactionRequest{Tx: d})
	})
}
