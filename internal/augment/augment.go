// Package augment generates synthetic variations of enrollment images.
// Each variation simulates a capture condition (lighting, distance, head
// tilt, camera quality) so the stored embedding set covers more of the
// conditions seen at recognition time.
package augment

import (
	_ "embed"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

// Config controls how many variations each sub-generator produces.
type Config struct {
	NumLighting  int  `yaml:"lighting" json:"lighting"`
	NumCrops     int  `yaml:"crops" json:"crops"`
	NumRotations int  `yaml:"rotations" json:"rotations"`
	AddBlur      bool `yaml:"blur" json:"blur"`
	AddNoise     bool `yaml:"noise" json:"noise"`
}

type presetTable struct {
	Presets map[string]Config `yaml:"presets"`
}

var presets presetTable

func init() {
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		// Embedded file, cannot fail in practice.
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}
}

// ErrUnknownPreset is returned when a requested preset is not in the table.
// Callers must fail fast rather than substitute a default.
type ErrUnknownPreset struct {
	Name string
}

func (e *ErrUnknownPreset) Error() string {
	return fmt.Sprintf("unknown augmentation preset: %q (available: %v)", e.Name, PresetNames())
}

// Preset returns the configuration for a named preset.
func Preset(name string) (Config, error) {
	cfg, ok := presets.Presets[name]
	if !ok {
		return Config{}, &ErrUnknownPreset{Name: name}
	}
	return cfg, nil
}

// PresetNames returns the available preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets.Presets))
	for name := range presets.Presets {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// Engine generates augmented enrollment images. An optional SaveDir
// persists generated frames to disk for inspection.
type Engine struct {
	SaveDir string
}

// Augment generates the augmented set for one image. The original image is
// always first, followed by lighting, crop/scale, rotation, blur and noise
// variations, each sub-generator capped at its requested count.
//
// The noise generator draws from math/rand and is the only source of
// non-determinism; everything else is a pure function of the input.
func (e *Engine) Augment(img image.Image, cfg Config) []image.Image {
	src := toRGBA(img)

	out := make([]image.Image, 0, 1+cfg.NumLighting+cfg.NumCrops+cfg.NumRotations+4)
	out = append(out, cloneRGBA(src))

	out = append(out, lightingVariations(src, cfg.NumLighting)...)
	out = append(out, cropVariations(src, cfg.NumCrops)...)
	out = append(out, rotationVariations(src, cfg.NumRotations)...)

	if cfg.AddBlur {
		out = append(out, blurVariations(src, 2)...)
	}
	if cfg.AddNoise {
		out = append(out, noiseVariations(src, 2)...)
	}

	return out
}

// AugmentWithPreset resolves a preset by name and augments with it.
func (e *Engine) AugmentWithPreset(img image.Image, preset string) ([]image.Image, error) {
	cfg, err := Preset(preset)
	if err != nil {
		return nil, err
	}
	return e.Augment(img, cfg), nil
}

// AugmentBatch augments multiple source images with a smaller per-image
// budget. The budget is split roughly in three across lighting, crops and
// rotations; blur and noise are enabled only when the budget allows.
func (e *Engine) AugmentBatch(images []image.Image, perImageBudget int) []image.Image {
	per := max(1, perImageBudget/3)
	cfg := Config{
		NumLighting:  per,
		NumCrops:     per,
		NumRotations: per,
		AddBlur:      perImageBudget > 3,
		AddNoise:     perImageBudget > 3,
	}

	var all []image.Image
	for _, img := range images {
		all = append(all, e.Augment(img, cfg)...)
	}
	return all
}

// Save writes augmented frames to SaveDir/<name>/aug_NNN.jpg, replacing any
// previous frames for that name. A no-op when SaveDir is empty.
func (e *Engine) Save(images []image.Image, name string) error {
	if e.SaveDir == "" {
		return nil
	}

	dir := filepath.Join(e.SaveDir, name)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating augmented dir: %w", err)
	}

	old, _ := filepath.Glob(filepath.Join(dir, "aug_*.jpg"))
	for _, f := range old {
		_ = os.Remove(f)
	}

	for i, img := range images {
		path := filepath.Join(dir, fmt.Sprintf("aug_%03d.jpg", i))
		if err := writeJPEG(path, img); err != nil {
			return fmt.Errorf("saving augmented frame %d: %w", i, err)
		}
	}
	return nil
}
