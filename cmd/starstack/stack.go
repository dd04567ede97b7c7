package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"starstack/internal/history"
	ss "starstack/pkg/starstack"
)

type stackOptions struct {
	output     string
	overlay    string
	historyDB  string
	debayer    bool
	threshold  float64
	minArea    float64
	maxArea    float64
	similarity float64
	indexed    bool
	hotpixel   bool
	workers    int
}

func newStackCmd(root *rootOptions) *cobra.Command {
	opts := &stackOptions{}
	cmd := &cobra.Command{
		Use:   "stack <frame> [frame...]",
		Short: "Align frames onto the best one and write the weighted composite",
		Long: `Detect stars in every frame, pick the highest-quality frame as reference, align the
others to it by triangle matching and write the quality-weighted average. Frames that
cannot be aligned are left out. Inputs may be FITS, PNG, JPEG, TIFF, BMP or WebP.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := root.params()
			if err != nil {
				return err
			}
			applyStackFlags(cmd, opts, p)
			if err := p.Validate(); err != nil {
				return err
			}
			return runStack(cmd.Context(), root.logger(), p, opts, args)
		},
	}

	d := ss.DefaultParams()
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "composite output path (.png|.jpg|.tif|.bmp|.fits)")
	cmd.Flags().StringVar(&opts.overlay, "overlay", "", "write an alignment overlay JPEG to this path")
	cmd.Flags().StringVar(&opts.historyDB, "history", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.debayer, "debayer", false, "treat FITS inputs as raw RGGB mosaics")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", d.StarThreshold, "star binarization threshold (0-255)")
	cmd.Flags().Float64Var(&opts.minArea, "min-area", d.MinStarArea, "minimum star contour area")
	cmd.Flags().Float64Var(&opts.maxArea, "max-area", d.MaxStarArea, "maximum star contour area")
	cmd.Flags().Float64Var(&opts.similarity, "similarity", d.TriangleSimilarity, "triangle similarity threshold")
	cmd.Flags().BoolVar(&opts.indexed, "indexed", d.IndexedMatching, "use the ratio index for triangle matching")
	cmd.Flags().BoolVar(&opts.hotpixel, "hotpixel", d.HotpixelFilter, "replace hot pixels before detection")
	cmd.Flags().IntVarP(&opts.workers, "workers", "j", d.Workers, "parallel frames (0 = all CPUs)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// applyStackFlags overrides tuning values with the flags given explicitly.
func applyStackFlags(cmd *cobra.Command, opts *stackOptions, p *ss.Params) {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		p.StarThreshold = opts.threshold
	}
	if flags.Changed("min-area") {
		p.MinStarArea = opts.minArea
	}
	if flags.Changed("max-area") {
		p.MaxStarArea = opts.maxArea
	}
	if flags.Changed("similarity") {
		p.TriangleSimilarity = opts.similarity
	}
	if flags.Changed("indexed") {
		p.IndexedMatching = opts.indexed
	}
	if flags.Changed("hotpixel") {
		p.HotpixelFilter = opts.hotpixel
	}
	if flags.Changed("workers") {
		p.Workers = opts.workers
	}
}

func runStack(ctx context.Context, log *slog.Logger, p *ss.Params, opts *stackOptions, paths []string) error {
	run := history.Run{
		StartedAt:  time.Now(),
		FrameCount: len(paths),
		Reference:  -1,
		OutputPath: opts.output,
	}
	if raw, err := json.Marshal(p); err == nil {
		run.ParamsJSON = string(raw)
	}

	res, stage, err := stackAndWrite(ctx, log, p, opts, paths)
	run.FinishedAt = time.Now()
	if err != nil {
		run.Status = history.StatusFailed
		run.Stage = stage
		run.Error = err.Error()
	} else {
		run.Status = history.StatusCompleted
	}
	if res != nil {
		fillRunFromResult(&run, res, paths)
	}

	if opts.historyDB != "" {
		if herr := recordHistory(ctx, opts.historyDB, run); herr != nil {
			log.Error("history not recorded", "db", opts.historyDB, "error", herr)
		} else {
			log.Debug("history recorded", "db", opts.historyDB)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}

	printStackSummary(res, paths, opts.output, run.FinishedAt.Sub(run.StartedAt))
	return nil
}

// stackAndWrite returns the stage that failed alongside the error.
func stackAndWrite(ctx context.Context, log *slog.Logger, p *ss.Params, opts *stackOptions, paths []string) (*ss.Result, string, error) {
	frames, err := loadFrames(ctx, paths, opts.debayer, p.EffectiveWorkers())
	if err != nil {
		return nil, "load", err
	}
	log.Info("frames decoded", "frames", len(frames))

	res, err := ss.Stack(ctx, frames, p, log)
	if err != nil {
		if errors.Is(err, ss.ErrCompositeUndefined) {
			return nil, "composite", err
		}
		return nil, "stack", err
	}

	if err := saveFrame(opts.output, res.Composite); err != nil {
		return res, "write", err
	}
	log.Info("composite written", "path", opts.output)

	if opts.overlay != "" {
		if err := ss.WriteOverlay(res, opts.overlay); err != nil {
			return res, "overlay", err
		}
		log.Info("overlay written", "path", opts.overlay)
	}
	return res, "", nil
}

func fillRunFromResult(run *history.Run, res *ss.Result, paths []string) {
	run.Reference = res.Reference
	run.Aligned = res.Aligned
	run.Rejected = res.Rejected
	run.WeightSum = res.WeightSum
	for _, f := range res.Frames {
		rec := history.Frame{
			Index:   f.Index,
			Path:    paths[f.Index],
			Stars:   f.Stars,
			Quality: f.Quality,
			Status:  f.Status.String(),
		}
		if f.Status == ss.FrameAligned {
			rec.Model = f.Transform.Model.String()
			rec.Correspondences = f.Transform.Correspondences
			rec.AlignmentQuality = f.Transform.Quality
		}
		var ae *ss.AlignmentError
		if errors.As(f.Err, &ae) {
			rec.Reason = ae.Reason.Error()
		}
		run.Frames = append(run.Frames, rec)
	}
}

func recordHistory(ctx context.Context, path string, run history.Run) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	_, err = store.RecordRun(ctx, run)
	return err
}

func printStackSummary(res *ss.Result, paths []string, output string, elapsed time.Duration) {
	fmt.Println()
	fmt.Printf("=== Stacking Results (%.1fs) ===\n", elapsed.Seconds())
	fmt.Printf("  Frames:     %d\n", len(res.Frames))
	fmt.Printf("  Reference:  %d (%s)\n", res.Reference, paths[res.Reference])
	fmt.Printf("  Aligned:    %d\n", res.Aligned)
	fmt.Printf("  Rejected:   %d\n", res.Rejected)
	fmt.Println("  ---")
	for _, f := range res.Frames {
		line := fmt.Sprintf("  %3d %-9s stars=%-3d quality=%8.2f", f.Index, f.Status, f.Stars, f.Quality)
		switch f.Status {
		case ss.FrameAligned:
			t := f.Transform
			line += fmt.Sprintf("  %s dx=%.2f dy=%.2f rot=%.3f° scale=%.4f q=%.3f",
				t.Model, t.Translation.X, t.Translation.Y, t.Rotation*180/math.Pi, t.Scale, t.Quality)
		case ss.FrameRejected:
			line += fmt.Sprintf("  %v", f.Err)
		}
		fmt.Println(line)
	}
	fmt.Printf("\n  Output:     %s\n", output)
	fmt.Println("==============================")
}
