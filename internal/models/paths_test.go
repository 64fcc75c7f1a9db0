package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelsDir(t *testing.T) {
	t.Setenv(EnvModelsDir, "/env/models")
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))
	assert.Equal(t, "/env/models", GetModelsDir(""))

	t.Setenv(EnvModelsDir, "")
	root, err := findProjectRoot()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, DefaultModelsDir), GetModelsDir(""))
}

func TestResolveModelPath_PrefersOrganizedLayout(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, DetectionMobile),
		ResolveModelPath(dir, TypeDetection, VariantMobile, DetectionMobile))

	organized := filepath.Join(dir, TypeDetection, VariantMobile, DetectionMobile)
	require.NoError(t, os.MkdirAll(filepath.Dir(organized), 0o755))
	require.NoError(t, os.WriteFile(organized, []byte("onnx"), 0o600))
	assert.Equal(t, organized, ResolveModelPath(dir, TypeDetection, VariantMobile, DetectionMobile))
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	s := Resolve(dir, true)
	assert.Equal(t, filepath.Join(dir, DetectionServer), s.Detector)
	assert.Equal(t, filepath.Join(dir, RecognitionServer), s.Recognizer)
	assert.Equal(t, filepath.Join(dir, ClassifierMobile), s.Classifier)
	assert.Equal(t, filepath.Join(dir, DictionaryDefault), s.Dictionary)
}

func TestSet_Merge(t *testing.T) {
	s := Set{Recognizer: "/custom/rec.onnx"}.Merge(Set{Detector: "d", Recognizer: "r", Dictionary: "k"})
	assert.Equal(t, Set{Detector: "d", Recognizer: "/custom/rec.onnx", Dictionary: "k"}, s)
}

func TestValidateModelExists(t *testing.T) {
	f := filepath.Join(t.TempDir(), "m.onnx")
	assert.Error(t, ValidateModelExists(f))
	require.NoError(t, os.WriteFile(f, nil, 0o600))
	assert.NoError(t, ValidateModelExists(f))
}
