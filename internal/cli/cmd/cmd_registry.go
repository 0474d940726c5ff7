package cmd

import (
	"github.com/spf13/cobra"
)

// GetCommands returns the subcommands shared by bandman and bandmand
func GetCommands(binary string) []*cobra.Command {
	return []*cobra.Command{
		newVersionCmd(binary),
		newConfigCmd(),
	}
}
