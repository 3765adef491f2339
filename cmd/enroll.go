package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/facegate/rollcall/internal/augment"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/recognition"
	"github.com/facegate/rollcall/internal/store"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <directory>",
	Short: "Enroll a person from a directory of face images",
	Long: `Enroll every image in a directory for one identity.
Each image goes through detection, quality scoring and optional
augmentation; embeddings below the quality floor are skipped.`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("augment", true, "Generate augmented variants per image")
	enrollCmd.Flags().String("preset", "", "Augmentation preset (defaults to AUGMENTATION_PRESET)")
	enrollCmd.Flags().String("class", "", "Class metadata for the identity")
	enrollCmd.Flags().String("section", "", "Section metadata for the identity")
	enrollCmd.Flags().String("house", "", "House metadata for the identity")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name, dir := args[0], args[1]
	cfg := config.Load()

	useAugment := mustGetBool(cmd, "augment") && cfg.Augment.Enabled
	preset := mustGetString(cmd, "preset")
	if preset == "" {
		preset = cfg.Augment.Preset
	}
	if useAugment {
		if _, err := augment.Preset(preset); err != nil {
			return err
		}
	}

	paths, err := listImages(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no images found in %s", dir)
	}

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening embedding store: %w", err)
	}
	det := detector.New(cfg.Detector.URL, cfg.Detector.Dim)
	engine := &augment.Engine{SaveDir: cfg.Storage.AugmentedDir}

	fmt.Printf("Enrolling %s from %d images (augmentation: %v)\n", name, len(paths), useAugment)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	ctx := context.Background()
	var added, skipped int
	var failures []string
	for _, path := range paths {
		n, err := enrollFile(ctx, st, det, engine, name, path, useAugment, preset)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", filepath.Base(path), err))
		} else if n == 0 {
			skipped++
		}
		added += n
		bar.Add(1)
	}

	metadata := store.Metadata{
		StudentClass: mustGetString(cmd, "class"),
		Section:      mustGetString(cmd, "section"),
		House:        mustGetString(cmd, "house"),
	}
	if !metadata.IsZero() {
		st.SetMetadata(name, metadata)
	}

	if err := st.Save(); err != nil {
		return fmt.Errorf("persisting embeddings: %w", err)
	}

	fmt.Printf("\nAdded %d embeddings, %d stored for %s\n", added, len(st.Embeddings(name)), name)
	if skipped > 0 {
		fmt.Printf("Skipped %d images below the quality floor\n", skipped)
	}
	for _, f := range failures {
		fmt.Printf("Failed: %s\n", f)
	}
	return nil
}

// enrollFile enrolls one image file, optionally with augmented variants.
func enrollFile(ctx context.Context, st *store.Store, det *detector.Client, engine *augment.Engine, name, path string, useAugment bool, preset string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decoding image: %w", err)
	}

	face, quality, err := detectDominantFace(ctx, det, data, img)
	if err != nil {
		return 0, err
	}
	if quality < store.MinEmbeddingQuality {
		return 0, nil
	}

	st.Enroll(name, face.Embedding, quality, face.DetScore)
	added := 1

	if !useAugment {
		return added, nil
	}

	frames, err := engine.AugmentWithPreset(img, preset)
	if err != nil {
		return added, err
	}
	if err := engine.Save(frames, name); err != nil {
		fmt.Printf("Warning: saving augmented frames: %v\n", err)
	}

	for _, frame := range frames[1:] {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}); err != nil {
			continue
		}
		face, quality, err := detectDominantFace(ctx, det, buf.Bytes(), frame)
		if err != nil || quality < store.MinEmbeddingQuality {
			continue
		}
		st.Enroll(name, face.Embedding, quality, face.DetScore)
		added++
	}
	return added, nil
}

// detectDominantFace returns the largest detected face and its quality.
func detectDominantFace(ctx context.Context, det *detector.Client, data []byte, img image.Image) (*recognition.Detection, float64, error) {
	detections, err := det.Detect(ctx, data)
	if err != nil {
		return nil, 0, err
	}
	if len(detections) == 0 {
		return nil, 0, recognition.ErrNoFaceDetected
	}

	best := 0
	for i := 1; i < len(detections); i++ {
		if detections[i].Area() > detections[best].Area() {
			best = i
		}
	}
	face := &detections[best]
	return face, recognition.Quality(face, img), nil
}

// listImages returns the image files directly inside dir, sorted.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}
