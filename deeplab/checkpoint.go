package deeplab

import (
	"fmt"
	"log"
	"os"
	"reflect"
	"sort"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// LoadWeights loads every variable of vs from the checkpoint at path.
//
// The checkpoint is validated against vs before any value is copied: each
// variable must be present with the same shape. On error vs is untouched.
// Checkpoint entries without a matching variable are ignored.
func LoadWeights(vs *nn.VarStore, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("deeplabv2: loading weights: %w", err)
	}

	named, err := ts.LoadMulti(path)
	if err != nil {
		return fmt.Errorf("deeplabv2: loading weights from %q: %w", path, err)
	}
	shapes := make(map[string][]int64, len(named))
	for _, nt := range named {
		shapes[nt.Name] = nt.Tensor.MustSize()
		nt.Tensor.MustDrop()
	}

	if err := checkCompatible(vs, shapes); err != nil {
		return fmt.Errorf("deeplabv2: loading weights from %q: %w", path, err)
	}

	if err := vs.Load(path); err != nil {
		return fmt.Errorf("deeplabv2: loading weights from %q: %w", path, err)
	}

	return nil
}

func checkCompatible(vs *nn.VarStore, shapes map[string][]int64) error {
	var names []string
	for name := range vs.Vars.NamedVariables {
		names = append(names, name)
	}
	sort.Strings(names)

	used := make(map[string]bool, len(names))
	for _, name := range names {
		v := vs.Vars.NamedVariables[name]
		src, ok := shapes[name]
		if !ok {
			return fmt.Errorf("deeplabv2: variable %q not found in checkpoint", name)
		}
		dst := v.MustSize()
		if !reflect.DeepEqual(src, dst) {
			return fmt.Errorf("deeplabv2: mismatched shape for variable %q: model %v, checkpoint %v", name, dst, src)
		}
		used[name] = true
	}

	var extra int
	for name := range shapes {
		if !used[name] {
			extra++
		}
	}
	if extra > 0 {
		log.Printf("WARNING: %d checkpoint tensor(s) have no matching model variable and are ignored.\n", extra)
	}

	return nil
}

// LoadBackboneWeights copies the variables found in the checkpoint at path
// into vs and leaves the others at their current values. It returns, sorted,
// the names of the variables that were not found or whose shape differs.
func LoadBackboneWeights(vs *nn.VarStore, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("deeplabv2: loading backbone weights: %w", err)
	}

	named, err := ts.LoadMulti(path)
	if err != nil {
		return nil, fmt.Errorf("deeplabv2: loading backbone weights from %q: %w", path, err)
	}
	src := make(map[string]*ts.Tensor, len(named))
	for _, nt := range named {
		src[nt.Name] = nt.Tensor
	}
	defer func() {
		for _, x := range src {
			x.MustDrop()
		}
	}()

	var names []string
	for name := range vs.Vars.NamedVariables {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []string
	for _, name := range names {
		v := vs.Vars.NamedVariables[name]
		x, ok := src[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if dst := v.MustSize(); !reflect.DeepEqual(x.MustSize(), dst) {
			log.Printf("WARNING: skipping %q: model shape %v, checkpoint shape %v\n", name, dst, x.MustSize())
			missing = append(missing, name)
			continue
		}
		ts.NoGrad(func() {
			v.Copy_(x)
		})
	}

	return missing, nil
}

// SaveWeights saves every variable of vs to path.
func SaveWeights(vs *nn.VarStore, path string) error {
	if err := vs.Save(path); err != nil {
		return fmt.Errorf("deeplabv2: saving weights to %q: %w", path, err)
	}
	return nil
}
