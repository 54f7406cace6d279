package deeplab

import (
	"fmt"
	"log"
	"os"

	"github.com/sugarme/gotch/nn"
	"gopkg.in/yaml.v3"

	"github.com/sugarme/deeplab/encoder"
)

// Config is the YAML configuration of a model and its data.
//
//	model:
//	  num_classes: 19
//	  backbone:
//	    type: ResNet101
//	    output_stride: 8
//	    pretrained: resnet101.ot
//	  backbone_indices: [3]
//	  aspp_ratios: [6, 12, 18, 24]
//	  align_corners: false
//	  pretrained: null
//	data:
//	  input_size: [512, 512]
//	  ignore_index: 255
//	  class_names: [road, sidewalk, ...]
type Config struct {
	Model ModelConfig `yaml:"model"`
	Data  DataConfig  `yaml:"data"`
}

// ModelConfig is the `model` section: backbone and DeepLabV2 head settings.
type ModelConfig struct {
	NumClasses      int64          `yaml:"num_classes"`
	Backbone        encoder.Config `yaml:"backbone"`
	BackboneIndices []int          `yaml:"backbone_indices"`
	ASPPRatios      []int64        `yaml:"aspp_ratios"`
	AlignCorners    bool           `yaml:"align_corners"`
	Pretrained      string         `yaml:"pretrained"`
}

// DataConfig is the `data` section: input size, ignored label and class names.
type DataConfig struct {
	// InputSize is [width, height]. Images are resized to it before inference.
	InputSize   []int    `yaml:"input_size"`
	IgnoreIndex int64    `yaml:"ignore_index"`
	ClassNames  []string `yaml:"class_names"`
}

// DefaultConfig returns the DeepLabV2 ResNet101 (output stride 8) setup used
// for Cityscapes.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			NumClasses: 19,
			Backbone: encoder.Config{
				Type:         "ResNet101",
				OutputStride: 8,
			},
			BackboneIndices: []int{3},
			ASPPRatios:      []int64{6, 12, 18, 24},
			AlignCorners:    false,
		},
		Data: DataConfig{
			InputSize:   []int{512, 512},
			IgnoreIndex: 255,
		},
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deeplabv2: reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("deeplabv2: parsing config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("deeplabv2: config %q: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that the model constructor cannot.
func (c *Config) Validate() error {
	if len(c.Data.InputSize) != 2 || c.Data.InputSize[0] <= 0 || c.Data.InputSize[1] <= 0 {
		return fmt.Errorf("data.input_size must be [width, height], got %v", c.Data.InputSize)
	}
	if n := len(c.Data.ClassNames); n > 0 && int64(n) != c.Model.NumClasses {
		return fmt.Errorf("data.class_names has %d entries, model.num_classes is %d", n, c.Model.NumClasses)
	}
	return nil
}

// Options converts the model section into model Options.
func (c *Config) Options() Options {
	return Options{
		NumClasses:      c.Model.NumClasses,
		BackboneIndices: c.Model.BackboneIndices,
		ASPPRatios:      c.Model.ASPPRatios,
		AlignCorners:    c.Model.AlignCorners,
		Pretrained:      c.Model.Pretrained,
	}
}

// ClassName returns the name of class i, or its index when unnamed.
func (c *Config) ClassName(i int) string {
	if i < len(c.Data.ClassNames) {
		return c.Data.ClassNames[i]
	}
	return fmt.Sprint(i)
}

// Build creates the backbone at the root of vs, loads its pretrained weights
// if any, then creates the DeepLabV2 model (which loads model.pretrained).
func Build(vs *nn.VarStore, cfg *Config) (*DeepLabV2, error) {
	backbone, err := encoder.New(vs.Root(), cfg.Model.Backbone)
	if err != nil {
		return nil, err
	}

	if path := cfg.Model.Backbone.Pretrained; path != "" {
		missing, err := LoadBackboneWeights(vs, path)
		if err != nil {
			return nil, err
		}
		if len(missing) > 0 {
			log.Printf("Backbone weights: %d variable(s) not found in %q\n", len(missing), path)
		}
	}

	return New(vs, backbone, cfg.Options())
}
