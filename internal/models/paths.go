// Package models locates the model and dictionary files on disk.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Default file names.
const (
	DetectionMobile   = "PP-OCRv5_mobile_det.onnx"
	DetectionServer   = "PP-OCRv5_server_det.onnx"
	RecognitionMobile = "PP-OCRv5_mobile_rec.onnx"
	RecognitionServer = "PP-OCRv5_server_rec.onnx"
	ClassifierMobile  = "ch_ppocr_mobile_v2.0_cls.onnx"
	DictionaryDefault = "ppocr_keys_v1.txt"
)

// Subdirectories of the organized layout.
const (
	TypeDetection    = "detection"
	TypeRecognition  = "recognition"
	TypeClassifier   = "classifier"
	TypeDictionaries = "dictionaries"

	VariantMobile = "mobile"
	VariantServer = "server"
)

// DefaultModelsDir is used below the project root when nothing else is set.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "SCANLINE_MODELS_DIR"

// Set names the files one pipeline needs.
type Set struct {
	Detector   string `mapstructure:"detector" yaml:"detector" json:"detector"`
	Classifier string `mapstructure:"classifier" yaml:"classifier" json:"classifier"`
	Recognizer string `mapstructure:"recognizer" yaml:"recognizer" json:"recognizer"`
	Dictionary string `mapstructure:"dictionary" yaml:"dictionary" json:"dictionary"`
}

// Resolve returns the default Set under modelsDir.
func Resolve(modelsDir string, server bool) Set {
	det, rec, variant := DetectionMobile, RecognitionMobile, VariantMobile
	if server {
		det, rec, variant = DetectionServer, RecognitionServer, VariantServer
	}
	return Set{
		Detector:   ResolveModelPath(modelsDir, TypeDetection, variant, det),
		Classifier: ResolveModelPath(modelsDir, TypeClassifier, "", ClassifierMobile),
		Recognizer: ResolveModelPath(modelsDir, TypeRecognition, variant, rec),
		Dictionary: ResolveModelPath(modelsDir, TypeDictionaries, "", DictionaryDefault),
	}
}

// Merge returns s with empty fields taken from defaults.
func (s Set) Merge(defaults Set) Set {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Set{
		Detector:   pick(s.Detector, defaults.Detector),
		Classifier: pick(s.Classifier, defaults.Classifier),
		Recognizer: pick(s.Recognizer, defaults.Recognizer),
		Dictionary: pick(s.Dictionary, defaults.Dictionary),
	}
}

// GetModelsDir returns modelsDir if set, then $SCANLINE_MODELS_DIR, then
// <project root>/models, then "models".
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers <dir>/<type>[/<variant>]/<file> when it exists
// and falls back to the flat <dir>/<file>.
func ResolveModelPath(modelsDir, modelType, variant, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, variant, filename)
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(base, filename)
}

// ValidateModelExists checks that a model file is present.
func ValidateModelExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", path)
	}
	return nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (go.mod not found)")
		}
		dir = parent
	}
}
