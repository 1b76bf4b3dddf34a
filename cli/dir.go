package cli

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/javanhut/gcc-ocf/internal/colors"
	"github.com/javanhut/gcc-ocf/internal/config"
	"github.com/javanhut/gcc-ocf/internal/dirpack"
	"github.com/javanhut/gcc-ocf/internal/pipelinespec"
	"github.com/javanhut/gcc-ocf/internal/singlecontainer"
	"github.com/javanhut/gcc-ocf/internal/verify"
	"github.com/spf13/cobra"
)

var (
	dpPipelineSpec       string
	dpBuckets            int
	dpJobs               int
	dpSingleContainer    bool
	dpSingleContainerMix bool
	dpKeepConcat         bool
	dpVerbose            bool
)

var dirPackCmd = &cobra.Command{
	Use:   "pack IN OUT",
	Short: "Pack a directory tree into compressed output",
	Args:  cobra.ExactArgs(2),
	Run:   runDirPack,
}

var dirUnpackCmd = &cobra.Command{
	Use:   "unpack IN OUT",
	Short: "Unpack a directory previously packed with dir pack",
	Args:  cobra.ExactArgs(2),
	Run:   runDirUnpack,
}

var dirVerifyCmd = &cobra.Command{
	Use:   "verify IN",
	Short: "Verify a packed directory",
	Args:  cobra.ExactArgs(1),
	Run:   runDirVerify,
}

var dirPipelineValidateCmd = &cobra.Command{
	Use:   "pipeline-validate SPEC",
	Short: "Validate a directory pipeline spec (inline JSON or @file.json)",
	Args:  cobra.ExactArgs(1),
	Run:   runDirPipelineValidate,
}

func init() {
	dirPackCmd.Flags().StringVar(&dpPipelineSpec, "pipeline", "", "directory pipeline spec, inline JSON or @file.json")
	dirPackCmd.Flags().IntVar(&dpBuckets, "buckets", 0, "number of content buckets (0 = use config/pipeline default)")
	dirPackCmd.Flags().IntVar(&dpJobs, "jobs", 0, "worker pool size for bucket compression (0 = use config/pipeline default)")
	dirPackCmd.Flags().BoolVar(&dpSingleContainer, "single-container", false, "pack into one text-only bundle instead of per-bucket archives")
	dirPackCmd.Flags().BoolVar(&dpSingleContainerMix, "single-container-mixed", false, "pack into a text bundle plus a binary bundle")
	dirPackCmd.Flags().BoolVar(&dpKeepConcat, "keep-concat", false, "accepted but has no effect: no mode writes intermediate concatenated files to disk")
	dirPackCmd.Flags().BoolVar(&dpVerbose, "verbose", false, "print a per-file ok/failed line from the manifest after packing")

	dirVerifyCmd.Flags().BoolVar(&fullMode, "full", false, "also recompute blob digests (packed dir) or decode the bundles (single-container) instead of structural checks only")
	dirVerifyCmd.Flags().BoolVar(&fvVerifyJSONOut, "json", false, "emit the verify result as JSON")
}

// resolveDirOptions builds dirpack.Options from config (lowest
// precedence), then an explicit --pipeline spec (wins over config),
// then the pack command's own flags (wins over both), mirroring the
// precedence contract internal/config.ApplyToOptions documents.
func resolveDirOptions() (dirpack.Options, error) {
	opts := dirpack.DefaultOptions()

	cfg, err := config.Load()
	if err != nil {
		return opts, err
	}
	opts = cfg.ApplyToOptions(opts)

	if dpPipelineSpec != "" {
		spec, err := pipelinespec.LoadDirPipelineSpec(dpPipelineSpec)
		if err != nil {
			return opts, err
		}
		opts, err = spec.ApplyTo(opts)
		if err != nil {
			return opts, err
		}
	}

	if dpBuckets > 0 {
		opts.Buckets = dpBuckets
	}
	if dpJobs > 0 {
		opts.Jobs = dpJobs
	}
	return opts, nil
}

func runDirPack(cmd *cobra.Command, args []string) {
	in, out := args[0], args[1]

	if dpSingleContainer && dpSingleContainerMix {
		usageErr("dir pack: --single-container and --single-container-mixed are mutually exclusive")
	}

	if dpSingleContainer {
		if err := singlecontainer.PackTextOnly(in, out); err != nil {
			fail(err)
		}
		log.Printf("%s %s -> %s (single-container, text-only)", colors.Green("packed"), in, out)
		return
	}
	if dpSingleContainerMix {
		opts, err := resolveDirOptions()
		if err != nil {
			fail(err)
		}
		if err := singlecontainer.PackMixed(in, out, opts.HaveZstd); err != nil {
			fail(err)
		}
		log.Printf("%s %s -> %s (single-container, mixed)", colors.Green("packed"), in, out)
		return
	}

	opts, err := resolveDirOptions()
	if err != nil {
		fail(err)
	}
	stats, err := dirpack.PackDir(in, out, opts)
	if err != nil {
		fail(err)
	}
	if dpKeepConcat {
		log.Printf("--keep-concat has no effect: no intermediate concatenated files are written")
	}

	if dpVerbose {
		printManifestStatus(filepath.Join(out, dirpack.ManifestName))
	}

	ratio := 0.0
	if stats.InTotal > 0 {
		ratio = float64(stats.OutTotal) / float64(stats.InTotal)
	}
	log.Printf("%s %s -> %s (%d ok, %d failed, %d -> %d bytes, ratio %.3f)",
		colors.Green("packed"), in, out, stats.FilesOK, stats.FilesFail, stats.InTotal, stats.OutTotal, ratio)
}

type manifestStatusLine struct {
	Kind  string `json:"kind"`
	Rel   string `json:"rel"`
	Error string `json:"error"`
}

// printManifestStatus prints one colorized ok/failed line per file
// record in manifestPath, skipping bucket_summary lines.
func printManifestStatus(manifestPath string) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec manifestStatusLine
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil || rec.Kind == "bucket_summary" || rec.Rel == "" {
			continue
		}
		status := "ok"
		if rec.Error != "" {
			status = "failed"
		}
		log.Println(colors.ColorizeFileStatus(status, rec.Rel))
	}
}

func runDirUnpack(cmd *cobra.Command, args []string) {
	in, out := args[0], args[1]

	if singlecontainer.IsSingleContainerDir(in) {
		if err := singlecontainer.UnpackTextOnly(in, out); err != nil {
			fail(err)
		}
		log.Printf("%s %s -> %s (single-container, text-only)", colors.Green("unpacked"), in, out)
		return
	}
	if singlecontainer.IsSingleContainerMixedDir(in) {
		if err := singlecontainer.UnpackMixed(in, out); err != nil {
			fail(err)
		}
		log.Printf("%s %s -> %s (single-container, mixed)", colors.Green("unpacked"), in, out)
		return
	}

	stats, err := dirpack.UnpackDir(in, out)
	if err != nil {
		fail(err)
	}
	log.Printf("%s %s -> %s (%d ok, %d failed)", colors.Green("unpacked"), in, out, stats.FilesOK, stats.FilesFail)
}

func runDirVerify(cmd *cobra.Command, args []string) {
	in := args[0]

	var err error
	switch {
	case singlecontainer.IsSingleContainerDir(in):
		err = singlecontainer.VerifyTextOnly(in, fullMode)
	case singlecontainer.IsSingleContainerMixedDir(in):
		err = singlecontainer.VerifyMixed(in, fullMode)
	default:
		err = verify.VerifyPackedDir(in, fullMode, verify.ChunkSizeDefault)
	}
	emitVerifyResult("dir", in, fullMode, err)
}

func runDirPipelineValidate(cmd *cobra.Command, args []string) {
	spec, err := pipelinespec.LoadDirPipelineSpec(args[0])
	if err != nil {
		fail(err)
	}
	if _, err := spec.ApplyTo(dirpack.DefaultOptions()); err != nil {
		fail(err)
	}
	log.Printf("%s directory pipeline spec", colors.Green("valid"))
}
