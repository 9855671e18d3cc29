package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis-advisory/guidance-cli/internal/model"
	"github.com/aegis-advisory/guidance-cli/internal/pipeline"
)

var (
	processDocType     string
	processAgency      string
	processDate        string
	processModelOutput string
	processOut         string
)

var processCmd = &cobra.Command{
	Use:   "process <textfile>",
	Short: "Run the extraction pipeline on one normalized document",
	Long:  "Reads pre-extracted document text, runs the full pipeline (chunk, extract, dedupe, link, resolve, gate), persists the result, and prints the run artifact as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		in, err := loadInput(args[0], processModelOutput)
		if err != nil {
			return err
		}
		in.Document.DocType = processDocType
		in.Document.Agency = processAgency
		if processDate != "" {
			d, err := time.Parse("2006-01-02", processDate)
			if err != nil {
				return eris.Wrapf(err, "parse date %q", processDate)
			}
			in.Document.Date = &d
		}

		result, err := env.Pipeline.Process(ctx, in)
		if err != nil {
			return err
		}

		return writeResult(result, processOut)
	},
}

// loadInput reads the document text, hashes it, and attaches any
// pre-computed model responses (a JSON object keyed by chunk index).
func loadInput(textPath, modelPath string) (pipeline.Input, error) {
	text, err := os.ReadFile(textPath)
	if err != nil {
		return pipeline.Input{}, eris.Wrapf(err, "read document %s", textPath)
	}
	sum := sha256.Sum256(text)

	in := pipeline.Input{
		Document: model.Document{
			Hash:     hex.EncodeToString(sum[:8]),
			Filename: filepath.Base(textPath),
		},
		Text: string(text),
	}

	if modelPath != "" {
		raw, err := os.ReadFile(modelPath)
		if err != nil {
			return pipeline.Input{}, eris.Wrapf(err, "read model output %s", modelPath)
		}
		var byChunk map[int]json.RawMessage
		if err := json.Unmarshal(raw, &byChunk); err != nil {
			return pipeline.Input{}, eris.Wrapf(err, "parse model output %s", modelPath)
		}
		in.ModelResponses = make(map[int][]byte, len(byChunk))
		for idx, msg := range byChunk {
			in.ModelResponses[idx] = []byte(msg)
		}
	}

	return in, nil
}

func writeResult(result *model.RunResult, out string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal result")
	}
	if out == "" {
		os.Stdout.Write(data)
		os.Stdout.WriteString("\n")
		return nil
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return eris.Wrapf(err, "write result %s", out)
	}
	zap.L().Info("result written", zap.String("path", out))
	return nil
}

func init() {
	processCmd.Flags().StringVar(&processDocType, "type", "", "declared document type (UFC, standard, directive)")
	processCmd.Flags().StringVar(&processAgency, "agency", "", "issuing agency")
	processCmd.Flags().StringVar(&processDate, "date", "", "document date (YYYY-MM-DD)")
	processCmd.Flags().StringVar(&processModelOutput, "model-output", "", "JSON file of pre-computed model responses keyed by chunk index")
	processCmd.Flags().StringVar(&processOut, "out", "", "write result JSON to file instead of stdout")
	rootCmd.AddCommand(processCmd)
}
