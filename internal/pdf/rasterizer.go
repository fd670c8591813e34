package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/SandySenthilHub/TF-Phase1/internal/logging"
)

// Runner lets tests stub external commands
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Logger *logging.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if r.Logger != nil {
		if err != nil {
			r.Logger.Error("exec failed",
				"cmd", name,
				"args", strings.Join(args, " "),
				"duration_ms", time.Since(start).Milliseconds(),
				"error", err,
				"stderr", truncate(errb.String(), 8<<10))
		} else {
			r.Logger.Debug("exec ok",
				"cmd", name,
				"duration_ms", time.Since(start).Milliseconds())
		}
	}
	return out.Bytes(), errb.Bytes(), err
}

// Rasterizer renders PDF pages to images with pdftoppm
type Rasterizer struct {
	runner  Runner
	binary  string
	dpi     int
	tempDir string
}

// NewRasterizer creates a rasterizer. Empty binary means "pdftoppm" on PATH.
func NewRasterizer(runner Runner, binary string, dpi int, tempDir string) *Rasterizer {
	if runner == nil {
		runner = ExecRunner{Logger: logging.NewLogger("Rasterizer")}
	}
	if binary == "" {
		binary = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 200
	}
	return &Rasterizer{runner: runner, binary: binary, dpi: dpi, tempDir: tempDir}
}

// RenderPage renders one 1-based page of pdf. Only that page is decoded,
// so callers hold at most one image per concurrent page.
func (r *Rasterizer) RenderPage(ctx context.Context, pdf []byte, page int) (image.Image, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be 1 or greater, got %d", page)
	}
	dir, err := os.MkdirTemp(r.tempDir, "tf-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create raster dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write raster input: %w", err)
	}

	// pdftoppm -r <dpi> -png -f N -l N -singlefile <in.pdf> <dir/page> writes dir/page.png
	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	args := []string{"-r", strconv.Itoa(r.dpi), "-png", "-f", n, "-l", n, "-singlefile", in, prefix}
	if _, errb, err := r.runner.Run(ctx, r.binary, args...); err != nil {
		return nil, fmt.Errorf("%s failed on page %d: %w: %s", r.binary, page, err, truncate(string(errb), 512))
	}

	f, err := os.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("%s produced no image for page %d: %w", r.binary, page, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return img, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
