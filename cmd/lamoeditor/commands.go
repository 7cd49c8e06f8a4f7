package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lamoeditor/lamoeditor/internal/config"
	"github.com/lamoeditor/lamoeditor/internal/engine"
	"github.com/lamoeditor/lamoeditor/internal/export"
	"github.com/lamoeditor/lamoeditor/internal/ffmpeg"
	"github.com/lamoeditor/lamoeditor/internal/logging"
	"github.com/lamoeditor/lamoeditor/internal/project"
	"github.com/lamoeditor/lamoeditor/internal/render"
	"github.com/lamoeditor/lamoeditor/internal/session"
)

const barWidth = 40

func requireFlag(fs *flag.FlagSet, name, value string) error {
	if value == "" {
		fs.Usage()
		return fmt.Errorf("-%s is required", name)
	}
	return nil
}

// runRender exports a saved project, drawing progress until the job ends.
// Ctrl-C cancels the export and removes the partial output.
func runRender(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	projectPath := fs.String("project", "", "Project file to render (required)")
	out := fs.String("out", "", "Output file; the format's extension is added if missing (required)")
	format := fs.String("format", "", "Export format, e.g. \"MP4 (H.264)\" (default from config)")
	bitrate := fs.String("bitrate", "", "Video bitrate, e.g. 5000k (default from config)")
	fps := fs.Int("fps", 0, "Output frame rate; 0 keeps the source rate")
	fs.Parse(args)

	if err := requireFlag(fs, "project", *projectPath); err != nil {
		return err
	}
	if err := requireFlag(fs, "out", *out); err != nil {
		return err
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	// Progress owns the terminal; only warnings are logged.
	logger := logging.New(os.Stderr, "warn")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(ctx)
	}()

	ctx := context.Background()
	if err := a.session.LoadProject(ctx, *projectPath); err != nil {
		return err
	}
	job, err := a.session.Export(session.ExportRequest{
		OutputPath: *out,
		Format:     *format,
		Bitrate:    *bitrate,
		FPS:        *fps,
	})
	if err != nil {
		return err
	}

	st := job.Status()
	fmt.Println(titleStyle.Render("Rendering ") + valueStyle.Render(filepath.Base(*projectPath)))
	fmt.Println(field("Segments", fmt.Sprint(st.SegmentCount)))
	fmt.Println(field("Duration", clock(st.Duration)))
	fmt.Println(field("Format", st.Settings.Format+" @ "+st.Settings.Bitrate))
	fmt.Println(field("Output", st.OutputPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	start := time.Now()
	events, detach := job.Subscribe()
	defer detach()
	for done := false; !done; {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n"+dimStyle.Render("cancelling..."))
			job.Cancel()
			sigCh = nil
		case ev, open := <-events:
			if !open {
				done = true
				continue
			}
			fmt.Printf("\r%s", progressBar(ev.Progress, barWidth))
		}
	}
	fmt.Println()

	final := job.Wait()
	if final.State != export.StateSucceeded {
		return errors.New(final.Error)
	}

	size := "unknown size"
	if info, err := os.Stat(final.OutputPath); err == nil {
		size = humanize.Bytes(uint64(info.Size()))
	}
	fmt.Printf("%s %s (%s in %s)\n", mark(true), final.OutputPath, size, time.Since(start).Round(time.Millisecond))
	return nil
}

// runPlan prints what an export of the project would do, without ffmpeg.
func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	projectPath := fs.String("project", "", "Project file to plan (required)")
	asJSON := fs.Bool("json", false, "Print the plan as JSON")
	fs.Parse(args)

	if err := requireFlag(fs, "project", *projectPath); err != nil {
		return err
	}

	snap, err := project.LoadFile(*projectPath)
	if err != nil {
		return err
	}
	graph, err := render.Build(snap)
	if err != nil {
		return err
	}

	if *asJSON {
		b, err := json.MarshalIndent(graph, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	fmt.Println(titleStyle.Render("Render plan ") + valueStyle.Render(filepath.Base(*projectPath)))
	fmt.Print(graph.Describe())
	fmt.Println(field("Declared", clock(snap.TotalDuration())))
	return nil
}

func runEDL(args []string) error {
	fs := flag.NewFlagSet("edl", flag.ExitOnError)
	projectPath := fs.String("project", "", "Project file to convert (required)")
	outDir := fs.String("out", "", "Directory to write the EDL into (required)")
	name := fs.String("name", "", "EDL title and file name (default: project file name)")
	fps := fs.Float64("fps", 30, "Timecode frame rate")
	fs.Parse(args)

	if err := requireFlag(fs, "project", *projectPath); err != nil {
		return err
	}
	if err := requireFlag(fs, "out", *outDir); err != nil {
		return err
	}

	snap, err := project.LoadFile(*projectPath)
	if err != nil {
		return err
	}
	title := *name
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(*projectPath), filepath.Ext(*projectPath))
	}
	dir, err := filepath.Abs(*outDir)
	if err != nil {
		return err
	}

	path, err := export.WriteEDL(dir, title, snap, *fps)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%d events)\n", mark(true), path, len(snap.Segments))
	return nil
}

// runDoctor reports the ffmpeg build and which export formats it can encode.
func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print capabilities as JSON")
	fs.Parse(args)

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	eng, err := ffmpeg.NewEngine(ffmpegConfig(cfg, logging.New(os.Stderr, "warn")), nil)
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable (set LAMO_FFMPEG): %w", err)
	}
	caps, err := eng.RunDoctor(context.Background())
	if err != nil {
		return err
	}

	if *asJSON {
		b, err := json.MarshalIndent(caps, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}

	fmt.Println(titleStyle.Render("ffmpeg ") + valueStyle.Render(caps.Version))
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d encoders available", len(caps.Encoders))))
	fmt.Println()
	for _, p := range engine.Presets {
		fmt.Printf("%s %-12s %s\n", mark(caps.Supports(p)), p.Label, dimStyle.Render(p.VideoCodec+" / "+p.AudioCodec))
	}
	if len(caps.Missing) > 0 {
		fmt.Println()
		fmt.Println(errorStyle.Render("missing encoders: ") + strings.Join(caps.Missing, ", "))
	}
	return nil
}
