package cmd

import (
	"encoding/json"
	"os"
	"time"

	"FocusFM/core/flags"

	"github.com/spf13/cobra"
)

var (
	flagDisabled          bool
	flagDisabledOnWeekend bool
)

var flagsCmd = &cobra.Command{
	Use:   "flags",
	Short: "查看或修改功能开关",
}

var flagsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "显示当前开关及其效果",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openFlagsStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		f, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		return printFlags(f)
	},
}

var flagsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "修改开关，未指定的项保持不变",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeStore, err := openFlagsStore(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		f, err := store.Load(cmd.Context())
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("disabled") {
			f.Disabled = flagDisabled
		}
		if cmd.Flags().Changed("weekend") {
			f.DisabledOnWeekend = flagDisabledOnWeekend
		}
		if err := store.Save(cmd.Context(), f); err != nil {
			return err
		}
		return printFlags(f)
	},
}

func printFlags(f flags.Flags) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"flags":    f,
		"disabled": f.Effective(time.Now()),
	})
}

func init() {
	flagsSetCmd.Flags().BoolVar(&flagDisabled, "disabled", false, "disable the extension")
	flagsSetCmd.Flags().BoolVar(&flagDisabledOnWeekend, "weekend", true, "disable on Saturday and Sunday")
	flagsCmd.AddCommand(flagsGetCmd, flagsSetCmd)
	rootCmd.AddCommand(flagsCmd)
}
