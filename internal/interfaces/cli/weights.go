package cli

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/turtacn/KeyIP-FamilyExplorer/pkg/errors"
	types "github.com/turtacn/KeyIP-FamilyExplorer/pkg/types/exploration"
)

// WeightFile is the YAML document accepted by --weights:
//
//	weights:
//	  taxonomic: 0.2
//	  common_prior_art: 0.15
//	  ...
//	thresholds:
//	  membership: 65
//	  expansion: 35
type WeightFile struct {
	Weights    *types.Weights    `yaml:"weights"`
	Thresholds *types.Thresholds `yaml:"thresholds"`
}

// LoadWeightFile reads and decodes a weight file. Unknown keys are rejected
// so that a misspelt dimension does not silently weigh zero.
func LoadWeightFile(path string) (*WeightFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot open weight file")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var wf WeightFile
	if err := dec.Decode(&wf); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid weight file "+path)
	}
	if wf.Weights == nil && wf.Thresholds == nil {
		return nil, errors.New(errors.ErrCodeBadRequest, "weight file "+path+" has neither weights nor thresholds")
	}
	return &wf, nil
}

// scoringFlags are shared by create, expand and rescore.
type scoringFlags struct {
	preset      string
	weightsFile string
	membership  float64
	expansion   float64
}

func (f *scoringFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.preset, "preset", "", "named weight preset (see `explorer presets`)")
	fl.StringVar(&f.weightsFile, "weights", "", "YAML file with weights and/or thresholds")
	fl.Float64Var(&f.membership, "membership", 0, "membership threshold override (0..100)")
	fl.Float64Var(&f.expansion, "expansion", 0, "expansion threshold override (0..100)")
}

// resolve returns the weights and thresholds to send. Threshold flags win
// over the file; a threshold pair is sent only when something set it.
func (f *scoringFlags) resolve(cmd *cobra.Command) (*types.Weights, *types.Thresholds, error) {
	var (
		w *types.Weights
		t *types.Thresholds
	)
	if f.weightsFile != "" {
		wf, err := LoadWeightFile(f.weightsFile)
		if err != nil {
			return nil, nil, err
		}
		w, t = wf.Weights, wf.Thresholds
	}
	if w != nil && f.preset != "" {
		return nil, nil, errors.New(errors.ErrCodeBadRequest, "--preset and weights from --weights are mutually exclusive")
	}

	mSet := cmd.Flags().Changed("membership")
	eSet := cmd.Flags().Changed("expansion")
	if mSet || eSet {
		if t == nil {
			t = &types.Thresholds{}
		}
		if mSet {
			t.Membership = f.membership
		}
		if eSet {
			t.Expansion = f.expansion
		}
		if t.Membership == 0 || t.Expansion == 0 {
			return nil, nil, errors.New(errors.ErrCodeBadRequest, "both --membership and --expansion are required unless the weight file sets thresholds")
		}
	}
	return w, t, nil
}
