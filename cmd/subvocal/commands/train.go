package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/subvocal/pkg/classifier"
	"github.com/haivivi/subvocal/pkg/cli"
	"github.com/haivivi/subvocal/pkg/model"
	"github.com/haivivi/subvocal/pkg/runlog"
	"github.com/haivivi/subvocal/pkg/storage"
	"github.com/haivivi/subvocal/pkg/trainer"
)

var (
	trainData    string
	trainKind    string
	trainFolds   int
	trainPublish string
)

// trainSummary is the structured output of train.
type trainSummary struct {
	ID            string              `json:"id" yaml:"id"`
	Kind          string              `json:"kind" yaml:"kind"`
	Record        string              `json:"record" yaml:"record"`
	Dir           string              `json:"dir" yaml:"dir"`
	Published     string              `json:"published,omitempty" yaml:"published,omitempty"`
	Windows       int                 `json:"windows" yaml:"windows"`
	Classes       map[string]int      `json:"classes" yaml:"classes"`
	TrainAccuracy float64             `json:"train_accuracy" yaml:"train_accuracy"`
	CV            classifier.CVResult `json:"cv" yaml:"cv"`
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a model from a calibration recording",
	Long: `Train a classifier on a calibration recording and save the model.

The recording is filtered and windowed exactly as in live detection. The
command prints the class distribution, 5-fold cross-validated accuracy,
and a per-class report and confusion matrix on the training data.

Examples:
  subvocal train
  subvocal train --data ./emg_data/training_20240101_120000.csv --kind knn
  subvocal train --publish s3://models/headset-a`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		path := trainData
		if path == "" {
			if path, err = trainer.LatestRecord(cfg.Paths.Records); err != nil {
				return err
			}
		}
		rec, err := trainer.ReadRecord(path)
		if err != nil {
			return err
		}
		kind := cfg.Classifier.Kind
		if trainKind != "" {
			kind = trainKind
		}
		slog.Info("subvocal: training", "record", path, "samples", rec.Len(), "kind", kind)

		res, err := trainer.Train(ctx, rec, trainer.TrainOptions{
			Config: cfg.Pipeline,
			Kind:   kind,
			Params: cfg.Classifier.Params,
			Folds:  trainFolds,
			Source: path,
		})
		if err != nil {
			return err
		}
		a := res.Artifact
		if err := model.Save(cfg.Paths.Model, a); err != nil {
			return err
		}
		if trainPublish != "" {
			store, err := storage.Open(trainPublish, cfg.S3)
			if err != nil {
				return err
			}
			if err := model.Publish(ctx, store, a); err != nil {
				return err
			}
		}

		rl, err := runlog.Open(cfg.Paths.Runlog)
		if err != nil {
			slog.Warn("subvocal: run log unavailable", "error", err)
		} else {
			defer rl.Close()
			if err := rl.AddModel(ctx, runlog.Model{
				ID:            a.ID,
				Created:       a.Created,
				Kind:          a.Kind,
				Classes:       a.Classes,
				Record:        path,
				Dir:           cfg.Paths.Model,
				Windows:       res.Windows,
				TrainAccuracy: res.Report.Accuracy,
				CVMean:        res.CV.Mean,
				CVStd:         res.CV.Std,
				Published:     trainPublish,
			}); err != nil {
				slog.Warn("subvocal: run log write failed", "error", err)
			}
		}

		if formatOutput != string(cli.FormatTable) {
			return cli.Output(trainSummary{
				ID:            a.ID,
				Kind:          a.Kind,
				Record:        path,
				Dir:           cfg.Paths.Model,
				Published:     trainPublish,
				Windows:       res.Windows,
				Classes:       res.ClassWindows,
				TrainAccuracy: res.Report.Accuracy,
				CV:            res.CV,
			}, outputOptions())
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Class distribution (%d windows):\n", res.Windows)
		dist := cli.Table{Header: []string{"CLASS", "WINDOWS"}}
		for _, c := range a.Classes {
			dist.Rows = append(dist.Rows, []string{c, strconv.Itoa(res.ClassWindows[c])})
		}
		if err := cli.Output(dist, cli.OutputOptions{Format: cli.FormatTable, Writer: out}); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d-fold cross-validation: %s\n\n", len(res.CV.Folds), cli.FormatMeanStd(res.CV.Mean, res.CV.Std))
		fmt.Fprintln(out, "Training set report:")
		if _, err := res.Report.WriteTo(out); err != nil {
			return err
		}
		fmt.Fprintln(out, "\nConfusion matrix (rows: true, columns: predicted):")
		if _, err := res.Confusion.WriteTo(out); err != nil {
			return err
		}
		fmt.Fprintln(out)
		cli.PrintSuccess("model %s (%s) saved to %s", a.ID, a.Kind, cfg.Paths.Model)
		if trainPublish != "" {
			cli.PrintSuccess("published to %s", trainPublish)
		}
		fmt.Fprintln(out, "Next: subvocal live")
		return nil
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainData, "data", "", "recording to train on (default: latest)")
	trainCmd.Flags().StringVar(&trainKind, "kind", "", "classifier kind: "+strings.Join(classifier.Kinds(), ", "))
	trainCmd.Flags().IntVar(&trainFolds, "folds", trainer.DefaultFolds, "cross-validation folds")
	trainCmd.Flags().StringVar(&trainPublish, "publish", "", "also publish the model to a store (s3://bucket/prefix or a directory)")
	rootCmd.AddCommand(trainCmd)
}
