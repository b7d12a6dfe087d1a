// Package exttool encodes AVIF by delegating to an externally installed ffmpeg, ImageMagick or libvips binary.
package exttool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/platinummonkey/pastemark/internal/apperrors"
	"github.com/platinummonkey/pastemark/internal/logger"
)

// Tool identifies a supported conversion binary
type Tool string

const (
	// ToolNone means the path is not a recognized, executable tool
	ToolNone   Tool = ""
	ToolFFmpeg Tool = "ffmpeg"
	ToolMagick Tool = "magick"
	ToolVips   Tool = "vips"
)

// platformExts are executable suffixes stripped before matching a basename
var platformExts = []string{".exe"}

// Result is the outcome of one conversion
type Result struct {
	Stdout string
	Stderr string
	OK     bool
}

// DetectTool returns the tool named by the basename of path, ignoring case and a platform extension.
// It does not touch the filesystem.
func DetectTool(path string) Tool {
	if strings.TrimSpace(path) == "" {
		return ToolNone
	}

	base := strings.ToLower(filepath.Base(path))
	for _, ext := range platformExts {
		base = strings.TrimSuffix(base, ext)
	}

	switch Tool(base) {
	case ToolFFmpeg, ToolMagick, ToolVips:
		return Tool(base)
	default:
		return ToolNone
	}
}

// FindProgPath returns the tool at path when its basename is a supported tool and the file is executable
func FindProgPath(path string) (Tool, bool) {
	tool := DetectTool(path)
	if tool == ToolNone {
		return ToolNone, false
	}
	if !isExecutable(path) {
		return ToolNone, false
	}
	return tool, true
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	// Windows has no execute bit; existence of the .exe is what counts
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// MapQualityToAvif maps a 1–100 user quality (higher is better) onto ffmpeg's inverted 1–63 CRF scale
func MapQualityToAvif(userQuality int) int {
	q := userQuality
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}

	crf := 64 - int(math.Round(float64(q)*0.63))
	if crf < 1 {
		return 1
	}
	if crf > 63 {
		return 63
	}
	return crf
}

// Args builds the argument vector for tool
func Args(tool Tool, inputPath, outputPath string, quality int) ([]string, error) {
	switch tool {
	case ToolFFmpeg:
		return []string{
			"-i", inputPath,
			"-c:v", "libaom-av1",
			"-crf", strconv.Itoa(MapQualityToAvif(quality)),
			"-pix_fmt", "yuv420p",
			"-y",
			outputPath,
		}, nil
	case ToolMagick:
		return []string{inputPath, "-quality", strconv.Itoa(quality), outputPath}, nil
	case ToolVips:
		return []string{"copy", inputPath, fmt.Sprintf("%s[Q=%d]", outputPath, quality)}, nil
	default:
		return nil, fmt.Errorf("unsupported tool %q", tool)
	}
}

// Bridge runs conversions through the configured binary
type Bridge struct {
	progPath string
	logger   *logger.Logger
}

// Config holds configuration for the bridge
type Config struct {
	// ProgPath is the absolute path to ffmpeg, magick or vips
	ProgPath string
	Logger   *logger.Logger
}

// New creates a new bridge
func New(cfg *Config) *Bridge {
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}

	return &Bridge{
		progPath: cfg.ProgPath,
		logger:   log,
	}
}

// Available reports whether the configured binary is usable
func (b *Bridge) Available() bool {
	_, ok := FindProgPath(b.progPath)
	return ok
}

// Convert encodes inputPath to outputPath. The binary is spawned directly, never through a shell.
// A failed conversion returns Result.OK == false together with an external tool error.
func (b *Bridge) Convert(ctx context.Context, inputPath, outputPath string, quality int) (Result, error) {
	tool, ok := FindProgPath(b.progPath)
	if !ok {
		return Result{}, apperrors.NewExternalToolError(
			fmt.Sprintf("no executable ffmpeg, magick or vips at %q", b.progPath), nil)
	}

	args, err := Args(tool, inputPath, outputPath, quality)
	if err != nil {
		return Result{}, apperrors.NewExternalToolError("failed to build arguments", err)
	}

	log := b.logger.WithFields("tool", string(tool), "output", outputPath)
	log.Debugw("Running external converter", "args", args)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.progPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			log.WithFields("exit_code", exitErr.ExitCode()).Warn("External converter exited with an error")
		}
		return result, apperrors.NewExternalToolError(fmt.Sprintf("%s failed", tool), runErr)
	}

	if err := validateOutput(outputPath); err != nil {
		return result, err
	}

	result.OK = true
	log.Debug("External conversion completed")
	return result, nil
}

// validateOutput requires a non-empty output file; an empty one is removed
func validateOutput(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return apperrors.NewExternalToolError("output file not found: "+outputPath, err)
	}

	if info.Size() == 0 {
		_ = os.Remove(outputPath)
		return apperrors.NewExternalToolError("output file is empty: "+outputPath, nil)
	}

	return nil
}
