package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

var flagVerbose bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print model structure and output shape",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "list every variable with its shape")
}

func runInfo(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	vs, net, err := loadModel(cfg)
	if err != nil {
		return err
	}

	var names []string
	for n := range vs.Vars.NamedVariables {
		names = append(names, n)
	}
	sort.Strings(names)

	var params int64
	for _, n := range names {
		v := vs.Vars.NamedVariables[n]
		size := v.MustSize()
		count := int64(1)
		for _, d := range size {
			count *= d
		}
		params += count
		if flagVerbose {
			fmt.Printf("%-60s %v\n", n, size)
		}
	}

	fmt.Printf("Backbone:\t%v (output stride %v)\n", cfg.Model.Backbone.Type, cfg.Model.Backbone.OutputStride)
	fmt.Printf("Classes:\t%v\n", net.NumClasses())
	fmt.Printf("ASPP ratios:\t%v\n", net.Head().ASPP().Ratios())
	fmt.Printf("Variables:\t%v\n", len(names))
	fmt.Printf("Parameters:\t%v\n", params)

	w, h := inputSize(cfg)
	x := ts.MustZeros([]int64{1, 3, int64(h), int64(w)}, gotch.Float, device())
	defer x.MustDrop()

	var out []*ts.Tensor
	ts.NoGrad(func() {
		out, err = net.ForwardAll(x, false)
	})
	if err != nil {
		return err
	}
	fmt.Printf("Output shape:\t%v\n", out[0].MustSize())
	out[0].MustDrop()

	return nil
}
