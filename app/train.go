package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/umputun/sms-spam/app/dataset"
	"github.com/umputun/sms-spam/lib/smsspam"
)

// trainReport is the content of yaml report file
type trainReport struct {
	Dataset    string         `yaml:"dataset"`
	Model      string         `yaml:"model"`
	CreatedAt  time.Time      `yaml:"created_at"`
	Seed       uint64         `yaml:"seed"`
	Stratify   bool           `yaml:"stratify"`
	TrainSize  int            `yaml:"train_size"`
	TestSize   int            `yaml:"test_size"`
	Vocabulary int            `yaml:"vocabulary"`
	Evaluation smsspam.Report `yaml:"evaluation"`
}

// runTrain loads dataset, splits it, fits the pipeline on the train part, evaluates on the test part,
// prints the report and saves the model artifact
func runTrain(ctx context.Context, cmd trainCmd, out io.Writer) (smsspam.Report, error) {
	st := time.Now()
	normalizer, err := makeNormalizer(cmd.Normalizer)
	if err != nil {
		return smsspam.Report{}, err
	}

	samples, err := dataset.LoadFile(cmd.Dataset)
	if err != nil {
		return smsspam.Report{}, fmt.Errorf("can't load dataset: %w", err)
	}
	counts := lo.CountValuesBy(samples, func(s smsspam.Sample) smsspam.Label { return s.Label })
	log.Printf("[INFO] loaded %d samples from %s, %v", len(samples), cmd.Dataset, counts)

	train, test, err := smsspam.Split(samples, smsspam.SplitConfig{TestSize: cmd.TestSize, Seed: cmd.Seed, Stratify: cmd.Stratify})
	if err != nil {
		return smsspam.Report{}, fmt.Errorf("can't split dataset: %w", err)
	}
	log.Printf("[INFO] split %d/%d, seed %d, stratify %v", len(train), len(test), cmd.Seed, cmd.Stratify)

	docs, err := normalizeAll(ctx, normalizer, dataset.Texts(samples), cmd.Progress, out)
	if err != nil {
		return smsspam.Report{}, err
	}
	normalized := make(map[string]string, len(samples))
	for i, s := range samples {
		normalized[s.Text] = docs[i]
	}
	trainDocs := lo.Map(train, func(s smsspam.Sample, _ int) string { return normalized[s.Text] })
	testDocs := lo.Map(test, func(s smsspam.Sample, _ int) string { return normalized[s.Text] })

	pipeline := smsspam.NewPipeline(normalizer, smsspam.PipelineConfig{MaxFeatures: cmd.MaxFeatures, Alpha: cmd.Alpha})
	if err = pipeline.Fit(trainDocs, dataset.Labels(train)); err != nil {
		return smsspam.Report{}, fmt.Errorf("can't fit model: %w", err)
	}
	log.Printf("[INFO] model fitted, %d terms, classes %v", pipeline.Dim(), pipeline.Classifier().Classes())

	predicted, err := pipeline.PredictBatch(testDocs)
	if err != nil {
		return smsspam.Report{}, fmt.Errorf("can't predict test part: %w", err)
	}
	report, err := smsspam.Evaluate(dataset.Labels(test), predicted)
	if err != nil {
		return smsspam.Report{}, fmt.Errorf("can't evaluate model: %w", err)
	}
	if err = printReport(out, report); err != nil {
		return smsspam.Report{}, fmt.Errorf("can't print report: %w", err)
	}

	if err = ctx.Err(); err != nil {
		return smsspam.Report{}, fmt.Errorf("training canceled: %w", err)
	}

	if cmd.Report != "" {
		tr := trainReport{Dataset: cmd.Dataset, Model: cmd.Model, CreatedAt: time.Now().UTC(), Seed: cmd.Seed,
			Stratify: cmd.Stratify, TrainSize: len(train), TestSize: len(test), Vocabulary: pipeline.Dim(), Evaluation: report}
		if err = saveReport(cmd.Report, tr); err != nil {
			return smsspam.Report{}, err
		}
		log.Printf("[INFO] report saved to %s", cmd.Report)
	}

	if err = pipeline.SaveFile(cmd.Model); err != nil {
		return smsspam.Report{}, fmt.Errorf("can't save model: %w", err)
	}
	log.Printf("[INFO] model saved to %s in %v", cmd.Model, time.Since(st).Round(time.Millisecond))
	return report, nil
}

// normalizeAll normalizes texts, optionally showing progress bar
func normalizeAll(ctx context.Context, normalizer *smsspam.Normalizer, texts []string, progress bool, out io.Writer) ([]string, error) {
	var bar *progressbar.ProgressBar
	if progress {
		bar = progressbar.NewOptions(len(texts),
			progressbar.OptionSetWriter(out),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("normalizing"),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(out) }),
		)
	}

	res := make([]string, len(texts))
	for i, text := range texts {
		if i%1000 == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("normalization canceled: %w", ctx.Err())
		}
		res[i] = normalizer.Normalize(text)
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	return res, nil
}

// printReport prints accuracy, per-class metrics and confusion matrix as tables
func printReport(out io.Writer, report smsspam.Report) error {
	if _, err := fmt.Fprintf(out, "\naccuracy: %.4f, test samples: %d\n\n", report.Accuracy, report.Total); err != nil {
		return err
	}

	f := func(v float64) string { return fmt.Sprintf("%.4f", v) }
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"class", "precision", "recall", "f1", "support"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, l := range report.Classes {
		m := report.PerClass[l]
		table.Append([]string{string(l), f(m.Precision), f(m.Recall), f(m.F1), fmt.Sprint(m.Support)})
	}
	table.Append([]string{"macro avg", f(report.MacroAvg.Precision), f(report.MacroAvg.Recall), f(report.MacroAvg.F1),
		fmt.Sprint(report.MacroAvg.Support)})
	table.Append([]string{"weighted avg", f(report.WeightedAvg.Precision), f(report.WeightedAvg.Recall),
		f(report.WeightedAvg.F1), fmt.Sprint(report.WeightedAvg.Support)})
	table.Render()

	if _, err := fmt.Fprintln(out, "\nconfusion matrix (rows actual, columns predicted):"); err != nil {
		return err
	}
	confusion := tablewriter.NewWriter(out)
	confusion.SetHeader(append([]string{"actual"}, lo.Map(report.Classes, func(l smsspam.Label, _ int) string { return string(l) })...))
	confusion.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, actual := range report.Classes {
		row := []string{string(actual)}
		for _, predicted := range report.Classes {
			row = append(row, fmt.Sprint(report.Confusion[actual][predicted]))
		}
		confusion.Append(row)
	}
	confusion.Render()
	return nil
}

func saveReport(file string, report trainReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("can't marshal report: %w", err)
	}
	if err = os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
		return fmt.Errorf("can't make report directory: %w", err)
	}
	if err = os.WriteFile(file, data, 0o600); err != nil {
		return fmt.Errorf("can't write report %s: %w", file, err)
	}
	return nil
}
