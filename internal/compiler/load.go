package compiler

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/rxnsim/internal/ir"
)

// Load reads a model from a .cue file or a directory of .cue files forming
// one CUE package. The model is the top-level "model" struct when present,
// otherwise the whole file.
func Load(path string) (*ir.Model, error) {
	v, err := LoadValue(path)
	if err != nil {
		return nil, err
	}
	return CompileModel(ModelValue(v))
}

// LoadValue builds the CUE value at path without interpreting it.
func LoadValue(path string) (cue.Value, error) {
	info, err := os.Stat(path)
	if err != nil {
		return cue.Value{}, &CompileError{Field: "model", Message: fmt.Sprintf("cannot read %s: %v", path, err)}
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return cue.Value{}, &CompileError{Field: "model", Message: fmt.Sprintf("no CUE instances at %s", path)}
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, formatCUEError(inst.Err, "model")
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err, "model")
	}
	return v, nil
}

// ModelValue selects the model struct within a loaded value.
func ModelValue(v cue.Value) cue.Value {
	if mv := v.LookupPath(cue.ParsePath("model")); mv.Exists() {
		return mv
	}
	return v
}
