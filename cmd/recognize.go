package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/facegate/rollcall/internal/attendance"
	"github.com/facegate/rollcall/internal/config"
	"github.com/facegate/rollcall/internal/detector"
	"github.com/facegate/rollcall/internal/recognition"
	"github.com/facegate/rollcall/internal/store"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>",
	Short: "Recognize faces in an image against the enrolled identities",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Similarity threshold override in (0, 1]")
	recognizeCmd.Flags().Bool("record", false, "Record attendance for matched identities")
}

func runRecognize(cmd *cobra.Command, args []string) error {
	path := args[0]
	cfg := config.Load()

	threshold := cfg.Recognition.Threshold
	if f := mustGetFloat64(cmd, "threshold"); f != 0 {
		if f < 0 || f > 1 {
			return fmt.Errorf("threshold must be in (0, 1]")
		}
		threshold = f
	}
	record := mustGetBool(cmd, "record")

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	st, err := store.New(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening embedding store: %w", err)
	}
	if st.CountEmbeddings() == 0 {
		return fmt.Errorf("no identities enrolled")
	}

	var ledger *attendance.Ledger
	if record {
		ledger, err = attendance.NewLedger(filepath.Join(cfg.Storage.DataDir, "attendance.csv"))
		if err != nil {
			return fmt.Errorf("opening attendance ledger: %w", err)
		}
	}

	det := detector.New(cfg.Detector.URL, cfg.Detector.Dim)
	detections, err := det.Detect(context.Background(), data)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}
	if len(detections) == 0 {
		return recognition.ErrNoFaceDetected
	}

	fmt.Printf("Found %d face(s) in %s (threshold %.2f)\n\n", len(detections), filepath.Base(path), threshold)

	for i := range detections {
		face := &detections[i]
		quality := recognition.Quality(face, img)
		match := st.Match(face.Embedding, quality, threshold)

		if !match.Matched {
			fmt.Printf("Face %d: no match (best similarity %.3f, quality %.2f)\n", i+1, match.Similarity, quality)
			continue
		}

		fmt.Printf("Face %d: %s (similarity %.3f, quality %.2f)\n", i+1, match.Name, match.Similarity, quality)
		if record {
			recorded, err := ledger.RecordIfAbsent(match.Name, match.Similarity, time.Now())
			switch {
			case err != nil:
				fmt.Printf("  attendance not recorded: %v\n", err)
			case recorded:
				fmt.Printf("  attendance recorded\n")
			default:
				fmt.Printf("  already marked present today\n")
			}
		}
	}
	return nil
}
