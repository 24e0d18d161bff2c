package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tcfw/tributary/internal/config"
	"github.com/tcfw/tributary/pkg/cryptography"
)

var (
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Validator key commands",
	}

	keys_genCmd = &cobra.Command{
		Use:   "gen [file]",
		Short: "generate a validator key file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runKeysGen,
	}
)

func init() {
	keys_genCmd.Flags().BoolP("force", "f", false, "overwrite an existing key file")
}

func runKeysGen(cmd *cobra.Command, args []string) error {
	path := "validator.yaml"
	if len(args) > 0 {
		path = args[0]
	}

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.Errorf("%s already exists", path)
	}

	k := cryptography.NewPrivateKey()
	if err := config.WriteKeyFile(path, k); err != nil {
		return err
	}

	pub, err := cryptography.EncodePublicKey(k.Public())
	if err != nil {
		return err
	}

	fmt.Println(pub)
	return nil
}
