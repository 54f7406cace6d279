package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/deeplab/deeplab"
)

// flag variables
var (
	flagConfig  string
	flagWeights string
	flagCuda    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "deeplab",
	Short:         "DeepLabV2 semantic segmentation",
	Long:          "Builds DeepLabV2 (dilated ResNet backbone + ASPP head) with gotch, runs inference and evaluates predictions.",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "model config YAML file (default: built-in DeepLabV2 ResNet101 config)")
	rootCmd.PersistentFlags().StringVar(&flagWeights, "weights", "", "model weights '.ot' file; overrides model.pretrained")
	rootCmd.PersistentFlags().BoolVar(&flagCuda, "cuda", false, "use CUDA if available")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(evalCmd)
}

func device() gotch.Device {
	if flagCuda {
		return gotch.CPU.CudaIfAvailable()
	}
	return gotch.CPU
}

func loadConfig() (*deeplab.Config, error) {
	if flagConfig == "" {
		return deeplab.DefaultConfig(), nil
	}
	return deeplab.LoadConfig(flagConfig)
}

// loadModel builds the configured model and loads its weights.
func loadModel(cfg *deeplab.Config) (*nn.VarStore, *deeplab.DeepLabV2, error) {
	if flagWeights != "" {
		path, err := filepath.Abs(flagWeights)
		if err != nil {
			return nil, nil, err
		}
		cfg.Model.Pretrained = path
	}

	vs := nn.NewVarStore(device())
	net, err := deeplab.Build(vs, cfg)
	if err != nil {
		return nil, nil, err
	}

	return vs, net, nil
}

// inputSize returns the configured [width, height].
func inputSize(cfg *deeplab.Config) (int, int) {
	return cfg.Data.InputSize[0], cfg.Data.InputSize[1]
}
