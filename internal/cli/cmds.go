package cli

func regCommands() {
	//Keys
	keysCmd.AddCommand(keys_genCmd)

	//Tx
	txCmd.AddCommand(tx_submitCmd)
	txCmd.AddCommand(tx_provideCmd)

	//Root
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(txCmd)
}
