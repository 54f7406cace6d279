package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sugarme/deeplab/deeplab"
	"github.com/sugarme/deeplab/imageio"
)

var (
	flagOutput  string
	flagOpacity uint8
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>...",
	Short: "Segment images and save color masks and overlays",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runPredict,
}

func init() {
	predictCmd.Flags().StringVar(&flagOutput, "output", "output", "output directory")
	predictCmd.Flags().Uint8Var(&flagOpacity, "opacity", 128, "mask opacity in overlays (0-255)")
}

func runPredict(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, net, err := loadModel(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(flagOutput, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", flagOutput, err)
	}

	for _, imgPath := range args {
		if err := predictImage(net, cfg, imgPath); err != nil {
			return fmt.Errorf("predicting %s: %w", imgPath, err)
		}
	}

	fmt.Printf("Predicted %d image(s) in %.2fs\n", len(args), time.Since(start).Seconds())
	return nil
}

func predictImage(net *deeplab.DeepLabV2, cfg *deeplab.Config, imgPath string) error {
	img, err := imageio.ReadImage(imgPath)
	if err != nil {
		return err
	}

	w, h := inputSize(cfg)
	x := imageio.ToTensor(img, w, h).MustUnsqueeze(0, true).MustTo(device(), true)
	pred, err := net.Predict(x)
	x.MustDrop()
	if err != nil {
		return err
	}
	labels := pred.Int64Values()
	pred.MustDrop()

	b := img.Bounds()
	labels = imageio.ResizeLabels(labels, w, h, b.Dx(), b.Dy())
	mask, err := imageio.LabelToImage(labels, b.Dx(), b.Dy(), imageio.ColorMap(int(net.NumClasses())))
	if err != nil {
		return err
	}

	name := strings.TrimSuffix(filepath.Base(imgPath), filepath.Ext(imgPath))
	if err := imageio.SavePNG(mask, filepath.Join(flagOutput, name+"_mask.png")); err != nil {
		return err
	}
	overlay := imageio.Overlay(img, mask, flagOpacity)
	if err := imageio.SavePNG(overlay, filepath.Join(flagOutput, name+"_overlay.png")); err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", imgPath, classSummary(cfg, labels))
	return nil
}

// classSummary lists the classes present in labels with their pixel share.
func classSummary(cfg *deeplab.Config, labels []int64) string {
	counts := make(map[int64]int)
	for _, l := range labels {
		counts[l]++
	}

	var parts []string
	for c := int64(0); c < cfg.Model.NumClasses; c++ {
		if n := counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %.1f%%", cfg.ClassName(int(c)), 100*float64(n)/float64(len(labels))))
		}
	}
	return strings.Join(parts, ", ")
}
