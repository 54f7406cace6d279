package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sugarme/deeplab/deeplab"
)

var initCmd = &cobra.Command{
	Use:   "init <output.ot>",
	Short: "Build the configured model and save its weights",
	Long:  "Builds the model from config (loading backbone pretrained weights if set) and saves all of its variables, producing a checkpoint that `--weights` accepts.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vs, _, err := loadModel(cfg)
	if err != nil {
		return err
	}

	if err := deeplab.SaveWeights(vs, args[0]); err != nil {
		return err
	}
	fmt.Printf("Saved %d variables to %s\n", len(vs.Vars.NamedVariables), args[0])

	return nil
}
