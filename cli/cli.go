// Package cli wires the gcc-ocf command surface: `file` and `dir`
// subcommands for compress/decompress/verify/pipeline-validate, plus the
// lossy extract pair and a config accessor. One cobra rootCmd is
// assembled in init via AddCommand; progress goes to log.Printf and
// usage errors caught before an operation starts exit directly.
package cli

import (
	"fmt"
	"os"

	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	debug    bool
	fullMode bool
)

var rootCmd = &cobra.Command{
	Use:   "gcc-ocf",
	Short: "gcc-ocf is an optimizing compression framework",
	Long:  "gcc-ocf picks and applies layer/codec compression pipelines to files and directories, with deterministic, verifiable output.",
	Run: func(cmd *cobra.Command, args []string) {
		if version {
			fmt.Printf("gcc-ocf version %s\n", Version)
			os.Exit(0)
		}
		cmd.Help()
	},
}

var version bool

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "re-raise full error traces instead of a short message")
	rootCmd.Flags().BoolVar(&version, "version", false, "print the gcc-ocf version")

	rootCmd.AddCommand(fileCmd)
	fileCmd.AddCommand(fileCompressCmd, fileDecompressCmd, fileVerifyCmd, filePipelineValidateCmd, fileExtractCmd, fileExtractShowCmd)

	rootCmd.AddCommand(dirCmd)
	dirCmd.AddCommand(dirPackCmd, dirUnpackCmd, dirVerifyCmd, dirPipelineValidateCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Operations on a single file",
}

var dirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Operations on a directory tree",
}

// fail maps err to its frozen exit code and terminates the process.
// Under --debug it formats err with %+v, otherwise with %v; gccerr.Error
// has no custom formatting, so both print its Error() text, which
// already includes any wrapped cause.
func fail(err error) {
	if debug {
		fmt.Fprintf(os.Stderr, "error: %+v\n", err)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(gccerr.KindOf(err).ExitCode())
}

// usageErr prints msg as a usage error and exits with the USAGE code,
// for argument-shape problems caught before an operation is attempted.
func usageErr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "usage: "+format+"\n", args...)
	os.Exit(gccerr.Usage.ExitCode())
}
