package cli

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/javanhut/gcc-ocf/internal/codec"
	"github.com/javanhut/gcc-ocf/internal/colors"
	"github.com/javanhut/gcc-ocf/internal/container"
	"github.com/javanhut/gcc-ocf/internal/fileops"
	"github.com/javanhut/gcc-ocf/internal/gccerr"
	"github.com/javanhut/gcc-ocf/internal/layer"
	"github.com/javanhut/gcc-ocf/internal/pipelinespec"
	"github.com/javanhut/gcc-ocf/internal/verify"
	"github.com/spf13/cobra"
)

var (
	fcLayer         string
	fcCodec         string
	fcStreamCodecs  string
	fcMBN           bool
	fcPipelineSpec  string
	fvVerifyJSONOut bool
)

var fileCompressCmd = &cobra.Command{
	Use:   "compress IN OUT",
	Short: "Compress a single file with a chosen or spec'd pipeline",
	Args:  cobra.ExactArgs(2),
	Run:   runFileCompress,
}

var fileDecompressCmd = &cobra.Command{
	Use:   "decompress IN OUT",
	Short: "Decompress a single v6 container file",
	Args:  cobra.ExactArgs(2),
	Run:   runFileDecompress,
}

var fileVerifyCmd = &cobra.Command{
	Use:   "verify IN",
	Short: "Verify a single v6 container file",
	Args:  cobra.ExactArgs(1),
	Run:   runFileVerify,
}

var filePipelineValidateCmd = &cobra.Command{
	Use:   "pipeline-validate SPEC",
	Short: "Validate a single-file pipeline spec (inline JSON or @file.json)",
	Args:  cobra.ExactArgs(1),
	Run:   runFilePipelineValidate,
}

var fileExtractCmd = &cobra.Command{
	Use:   "extract KIND IN OUT",
	Short: "LOSSY semantic extract (only kind: numbers_only)",
	Args:  cobra.ExactArgs(3),
	Run:   runFileExtract,
}

var fileExtractShowCmd = &cobra.Command{
	Use:   "extract-show IN",
	Short: "Show the contents of an EXTRACT container",
	Args:  cobra.ExactArgs(1),
	Run:   runFileExtractShow,
}

func init() {
	fileCompressCmd.Flags().StringVar(&fcLayer, "layer", "", "layer name (e.g. bytes, lines_dict, split_text_nums)")
	fileCompressCmd.Flags().StringVar(&fcCodec, "codec", "", "codec name (e.g. zlib, zstd, huffman)")
	fileCompressCmd.Flags().StringVar(&fcStreamCodecs, "stream-codecs", "", "per-stream codec overrides, e.g. nums:num_v1,text:zlib")
	fileCompressCmd.Flags().BoolVar(&fcMBN, "mbn", false, "force the MBN multi-stream envelope even for single-stream layers")
	fileCompressCmd.Flags().StringVar(&fcPipelineSpec, "pipeline", "", "pipeline spec, inline JSON or @file.json; overrides --layer/--codec/--stream-codecs")

	fileVerifyCmd.Flags().BoolVar(&fullMode, "full", false, "fully decode instead of checking the header only")
	fileVerifyCmd.Flags().BoolVar(&fvVerifyJSONOut, "json", false, "emit the verify result as JSON")
}

func resolvePipeline() (layer.ID, codec.ID, map[string]codec.ID, error) {
	if fcPipelineSpec != "" {
		spec, err := pipelinespec.LoadPipelineSpec(fcPipelineSpec)
		if err != nil {
			return 0, 0, nil, err
		}
		return spec.LayerID, spec.CodecText, spec.StreamCodecs, nil
	}
	if fcLayer == "" || fcCodec == "" {
		return 0, 0, nil, gccerr.New(gccerr.Usage, "file compress: --layer and --codec are required without --pipeline")
	}
	layerID, err := layer.ByName(fcLayer)
	if err != nil {
		return 0, 0, nil, err
	}
	codecID, err := codec.ByName(fcCodec)
	if err != nil {
		return 0, 0, nil, err
	}
	var streamCodecs map[string]codec.ID
	if fcStreamCodecs != "" {
		streamCodecs, err = parseStreamCodecsFlag(fcStreamCodecs)
		if err != nil {
			return 0, 0, nil, err
		}
	}
	return layerID, codecID, streamCodecs, nil
}

func runFileCompress(cmd *cobra.Command, args []string) {
	in, out := args[0], args[1]
	layerID, codecID, streamCodecs, err := resolvePipeline()
	if err != nil {
		fail(err)
	}

	data, err := os.ReadFile(in)
	if err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file compress: read input", err))
	}

	if fcMBN && len(streamCodecs) == 0 {
		// Force the MBN multi-stream envelope instead of the single-stream
		// HBN2/ZBN2/ZRAW1 shortcut: EncodeFilePlan only takes that
		// shortcut when streamCodecs is empty, so pin the main, text and
		// nums streams to codecID; any other stream of the layer gets
		// EncodeFilePlan's usual fallback.
		streamCodecs = map[string]codec.ID{"main": codecID, "text": codecID, "nums": codecID}
	}

	blob, err := container.EncodeFilePlan(layerID, codecID, streamCodecs, data, container.Resources{})
	if err != nil {
		fail(err)
	}

	if err := os.WriteFile(out, blob, 0o644); err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file compress: write output", err))
	}

	ratio := float64(len(blob)) / float64(max(1, len(data)))
	log.Printf("%s %s -> %s (%d -> %d bytes, ratio %.3f)", colors.Green("compressed"), in, out, len(data), len(blob), ratio)
}

func runFileDecompress(cmd *cobra.Command, args []string) {
	in, out := args[0], args[1]
	blob, err := os.ReadFile(in)
	if err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file decompress: read input", err))
	}
	data, err := container.DecodeFile(blob, container.Resources{})
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file decompress: write output", err))
	}
	log.Printf("%s %s -> %s (%d bytes)", colors.Green("decompressed"), in, out, len(data))
}

type verifyResultJSON struct {
	Schema  string `json:"schema"`
	OK      bool   `json:"ok"`
	Kind    string `json:"kind"`
	Target  string `json:"target"`
	Full    bool   `json:"full"`
	Version int    `json:"version"`
}

type verifyErrorJSON struct {
	Schema string `json:"schema"`
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
	Full   bool   `json:"full"`
	Error  struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func emitVerifyResult(kind, target string, full bool, err error) {
	if !fvVerifyJSONOut {
		if err != nil {
			fail(err)
		}
		fmt.Println(colors.SuccessText(fmt.Sprintf("OK: %s %s verified (full=%v)", kind, target, full)))
		return
	}

	if err != nil {
		out := verifyErrorJSON{Schema: "gcc-ocf.verify.v1", OK: false, Kind: kind, Target: target, Full: full}
		out.Error.Type = gccerr.KindOf(err).String()
		out.Error.Message = err.Error()
		enc := json.NewEncoder(os.Stderr)
		enc.Encode(out)
		os.Exit(gccerr.KindOf(err).ExitCode())
	}

	out := verifyResultJSON{Schema: "gcc-ocf.verify.v1", OK: true, Kind: kind, Target: target, Full: full, Version: container.Version}
	enc := json.NewEncoder(os.Stdout)
	enc.Encode(out)
}

func runFileVerify(cmd *cobra.Command, args []string) {
	in := args[0]
	err := verify.VerifyContainerFile(in, fullMode)
	emitVerifyResult("file", in, fullMode, err)
}

func runFilePipelineValidate(cmd *cobra.Command, args []string) {
	spec, err := pipelinespec.LoadPipelineSpec(args[0])
	if err != nil {
		fail(err)
	}
	log.Printf("%s pipeline spec %q: layer=%s codec=%s stream_codecs=%s",
		colors.Green("valid"), spec.Name, spec.LayerID.Name(), spec.CodecText.Name(), spec.StreamCodecsSpec())
}

func runFileExtract(cmd *cobra.Command, args []string) {
	kind, in, out := args[0], args[1], args[2]
	if kind != "numbers_only" {
		usageErr("file extract: unsupported kind %q (only numbers_only)", kind)
	}
	src, err := os.ReadFile(in)
	if err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file extract: read input", err))
	}
	blob, err := fileops.ExtractNumbersOnly(src)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(out, blob, 0o644); err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "file extract: write output", err))
	}
	log.Printf("%s numbers_only from %s -> %s (lossy, use extract-show to inspect)", colors.Yellow("extracted"), in, out)
}

func runFileExtractShow(cmd *cobra.Command, args []string) {
	in := args[0]
	blob, err := os.ReadFile(in)
	if err != nil {
		fail(gccerr.Wrap(gccerr.Usage, "extract-show: read input", err))
	}
	result, err := fileops.ExtractShow(blob)
	if err != nil {
		fail(err)
	}

	shown := result.Nums
	truncated := false
	if len(shown) > 200 {
		shown = shown[:200]
		truncated = true
	}
	out := map[string]any{
		"meta":       result.Meta,
		"nums":       shown,
		"nums_total": len(result.Nums),
	}
	fmt.Println(colors.SectionHeader("EXTRACT-SHOW"))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(out)
	if truncated {
		log.Printf("(showing first 200 of %d numbers)", len(result.Nums))
	}
}

func parseStreamCodecsFlag(s string) (map[string]codec.ID, error) {
	out := map[string]codec.ID{}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 {
			return nil, gccerr.Newf(gccerr.Usage, "file compress: malformed --stream-codecs entry: %q", pair)
		}
		name, codecName := kv[0], kv[1]
		cid, err := codec.ByName(codecName)
		if err != nil {
			return nil, gccerr.Wrap(gccerr.Usage, fmt.Sprintf("file compress: unknown codec %q for stream %s", codecName, name), err)
		}
		out[name] = cid
	}
	return out, nil
}
