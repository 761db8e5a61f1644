package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"

	"github.com/roach88/rxnsim/internal/compiler"
	"github.com/roach88/rxnsim/internal/ir"
)

// LoadResult is a model read from CUE.
type LoadResult struct {
	Model     *ir.Model
	Hash      string
	FileCount int // Number of CUE files the model was read from
}

// LoadError represents an error that occurred during model loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.located())
}

// located prefixes the message with the CUE position, if known.
func (e *LoadError) located() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return e.Message
}

// Details returns the position of e for structured output, or nil.
func (e *LoadError) Details() any {
	if !e.Pos.IsValid() {
		return nil
	}
	return map[string]any{
		"file":   e.Pos.Filename(),
		"line":   e.Pos.Line(),
		"column": e.Pos.Column(),
	}
}

// LoadModel reads a model from a .cue file or from a directory holding one
// CUE package.
func LoadModel(path string) (*LoadResult, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("model not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing model: %v", err)}
	}

	fileCount := 1
	if info.IsDir() {
		files, err := FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		fileCount = len(files)
	}

	value, err := compiler.LoadValue(path)
	if err != nil {
		return nil, convertCompileError(err, ErrCodeLoadFailed)
	}
	model, err := compiler.CompileModel(compiler.ModelValue(value))
	if err != nil {
		return nil, convertCompileError(err, ErrCodeBuildFailed)
	}
	hash, err := ir.ModelHash(model)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	return &LoadResult{Model: model, Hash: hash, FileCount: fileCount}, nil
}

// FindCUEFiles returns the .cue files directly inside dir. Subdirectories
// are separate CUE packages and are not part of the model.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, code string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    code,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: code, Message: err.Error()}
}

// failLoad reports a LoadModel error through f.
func failLoad(f *OutputFormatter, err error) error {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		exit := ExitFailure
		if loadErr.Code == ErrCodeNotFound || loadErr.Code == ErrCodeNoFiles || loadErr.Code == ErrCodeScanError {
			exit = ExitCommandError
		}
		return f.Fail(exit, loadErr.Code, loadErr.located(), loadErr.Details())
	}
	return f.Fail(ExitFailure, ErrCodeGeneric, err.Error(), nil)
}
