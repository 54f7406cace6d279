package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/spf13/cobra"

	"github.com/sugarme/deeplab/deeplab"
	"github.com/sugarme/deeplab/imageio"
	"github.com/sugarme/deeplab/metric"
	"github.com/sugarme/deeplab/report"
)

var evalCmd = &cobra.Command{
	Use:   "eval <pairs.csv>",
	Short: "Evaluate the model on labelled images",
	Long:  "Reads a CSV file with `image` and `label` columns (paths relative to the CSV file), predicts each image and reports mIoU, accuracy, kappa and Dice. Per-class scores are written to <output>/class_scores.csv and <output>/class_iou.png.",
	Args:  cobra.ExactArgs(1),
	RunE:  runEval,
}

func init() {
	evalCmd.Flags().StringVar(&flagOutput, "output", "output", "output directory")
}

// sample is an image file and its label file.
type sample struct {
	image string
	label string
}

// readSamples reads image/label pairs from a CSV file.
func readSamples(filename string) ([]sample, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	df := dataframe.ReadCSV(f, dataframe.HasHeader(true))
	if df.Err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, df.Err)
	}
	cols := make(map[string]bool)
	for _, n := range df.Names() {
		cols[n] = true
	}
	if !cols["image"] || !cols["label"] {
		return nil, fmt.Errorf("%s: expected columns 'image' and 'label', got %v", filename, df.Names())
	}

	dir := filepath.Dir(filename)
	images := df.Col("image").Records()
	labels := df.Col("label").Records()
	samples := make([]sample, len(images))
	for i := range images {
		samples[i] = sample{image: resolve(dir, images[i]), label: resolve(dir, labels[i])}
	}

	return samples, nil
}

func resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func runEval(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	samples, err := readSamples(args[0])
	if err != nil {
		return err
	}
	_, net, err := loadModel(cfg)
	if err != nil {
		return err
	}

	cm := metric.NewConfusionMatrix(int(cfg.Model.NumClasses), cfg.Data.IgnoreIndex)
	for i, s := range samples {
		if err := evalSample(net, cfg, cm, s); err != nil {
			return fmt.Errorf("evaluating %s: %w", s.image, err)
		}
		if (i+1)%10 == 0 {
			log.Printf("Evaluated %d/%d images\n", i+1, len(samples))
		}
	}

	r := report.New(cm, len(samples), cfg.ClassName)
	fmt.Println(r.Summary())
	for _, c := range r.Classes {
		fmt.Printf("%-20s IoU: %.4f\tAcc: %.4f\n", c.Class, c.IoU, c.Accuracy)
	}

	if err := os.MkdirAll(flagOutput, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", flagOutput, err)
	}
	if err := r.SaveCSV(filepath.Join(flagOutput, "class_scores.csv")); err != nil {
		return err
	}
	if err := r.PlotIoU(filepath.Join(flagOutput, "class_iou.png")); err != nil {
		return err
	}

	fmt.Printf("Duration: %.2f (min)\n", time.Since(start).Minutes())
	return nil
}

func evalSample(net *deeplab.DeepLabV2, cfg *deeplab.Config, cm *metric.ConfusionMatrix, s sample) error {
	img, err := imageio.ReadImage(s.image)
	if err != nil {
		return err
	}
	w, h := inputSize(cfg)
	label, err := imageio.ReadLabel(s.label, w, h)
	if err != nil {
		return err
	}
	defer label.MustDrop()

	x := imageio.ToTensor(img, w, h).MustUnsqueeze(0, true).MustTo(device(), true)
	pred, err := net.Predict(x)
	x.MustDrop()
	if err != nil {
		return err
	}
	defer pred.MustDrop()

	return cm.AddTensor(pred, label)
}
