// Command skintone classifies local images from the command line using the
// same pipeline as the HTTP service.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"go-skintone-inspector/internal/logger"
	"go-skintone-inspector/internal/palette"
	"go-skintone-inspector/internal/skintone"
	"go-skintone-inspector/internal/storage"
	"go-skintone-inspector/pkg/models"
)

type cliOptions struct {
	paletteFile string
	configFile  string
	logLevel    string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "skintone",
		Short:        "Classify skin tone in photographs",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure(opts.logLevel, os.Stderr)
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.paletteFile, "palette", "", "palette YAML file (default: embedded Monk palette)")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "pipeline options YAML overlay")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "error", "log level (debug, info, warn, error)")

	root.AddCommand(newAnalyzeCmd(opts), newPaletteCmd(opts))
	return root
}

func newAnalyzeCmd(opts *cliOptions) *cobra.Command {
	var contentType, fallbackTone string

	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Classify one or more image files and print JSON results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pal, err := loadPalette(opts.paletteFile)
			if err != nil {
				return err
			}
			pipelineOpts, err := skintone.LoadOptions(opts.configFile)
			if err != nil {
				return err
			}
			if fallbackTone != "" {
				pipelineOpts = pipelineOpts.WithFallbackTone(fallbackTone)
			}
			pipeline, err := skintone.NewPipeline(pal, pipelineOpts, logger.Component("cli"))
			if err != nil {
				return err
			}

			results := make([]fileResult, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				results = append(results, fileResult{
					File:           path,
					AnalysisResult: pipeline.Analyze(data, storage.ContentTypeOf(contentType, data)),
				})
			}

			if len(results) == 1 {
				return writeJSON(cmd.OutOrStdout(), results[0])
			}
			return writeJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVar(&contentType, "content-type", "", "declared MIME type (sniffed when empty)")
	cmd.Flags().StringVar(&fallbackTone, "fallback-tone", "", "tone ID reported when analysis fails (default: palette fallback)")
	return cmd
}

func newPaletteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "palette",
		Short: "Print the reference palette",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pal, err := loadPalette(opts.paletteFile)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), models.PaletteResponse{
				Name:       pal.Name(),
				FallbackID: pal.Fallback().ID,
				Tones:      pal.Tones(),
			})
		},
	}
}

type fileResult struct {
	File string `json:"file"`
	models.AnalysisResult
}

func loadPalette(path string) (*palette.Palette, error) {
	if path == "" {
		return palette.Default(), nil
	}
	return palette.Load(path)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
