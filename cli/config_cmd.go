package cli

import (
	"fmt"

	"github.com/javanhut/gcc-ocf/internal/config"
	"github.com/spf13/cobra"
)

var configGlobal bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Get or set gcc-ocf configuration (autopick, archive, resource dict sizes)",
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print a config value (e.g. autopick.enabled, archive, resources.num_dict_k)",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	Run:   runConfigSet,
}

func init() {
	configSetCmd.Flags().BoolVar(&configGlobal, "global", false, "write to the global config (~/.gccocfconfig) instead of the repo-local one")
}

func runConfigGet(cmd *cobra.Command, args []string) {
	val, err := config.GetValue(args[0])
	if err != nil {
		fail(err)
	}
	fmt.Println(val)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	if err := config.SetValue(args[0], args[1], configGlobal); err != nil {
		fail(err)
	}
}
