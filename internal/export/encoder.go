package export

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"os/exec"

	"github.com/icza/mjpeg"
)

const mjpegQuality = 90

// encoderOptions configures one encoding session.
type encoderOptions struct {
	Width       int
	Height      int
	FPS         int
	BitrateKbps int

	// AudioPath points at a prepared WAV mix; empty means video-only.
	AudioPath  string
	OutputPath string
	FFmpegPath string

	logf func(format string, args ...interface{})
}

// encoder consumes rendered frames one at a time and finalizes a playable
// file. Implementations encode live; no frame is buffered past addFrame.
type encoder interface {
	addFrame(img image.Image) error
	finish() error
	kill()
	path() string
}

// ffmpegEncoder streams PNG frames into a long-running ffmpeg process over
// stdin and muxes the audio mix in the same pass, producing a VP8/Opus WebM.
type ffmpegEncoder struct {
	opts   encoderOptions
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
}

func newFFmpegEncoder(opts encoderOptions) (*ffmpegEncoder, error) {
	args := []string{
		"-y",
		"-f", "image2pipe",
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
	}
	if opts.AudioPath != "" {
		args = append(args, "-i", opts.AudioPath)
	}
	args = append(args,
		"-c:v", "libvpx",
		"-b:v", fmt.Sprintf("%dk", opts.BitrateKbps),
		"-pix_fmt", "yuv420p",
	)
	if opts.AudioPath != "" {
		// Audio settings are only present when a mix exists; a video-only
		// pass must not allocate an empty audio stream.
		args = append(args, "-c:a", "libopus", "-b:a", "128k", "-shortest")
	}
	args = append(args, opts.OutputPath)

	opts.logf("[Export] starting ffmpeg: %v", args)

	e := &ffmpegEncoder{opts: opts}
	e.cmd = exec.Command(opts.FFmpegPath, args...)
	e.cmd.Stderr = &e.stderr

	stdin, err := e.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	e.stdin = stdin

	if err := e.cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return e, nil
}

func (e *ffmpegEncoder) addFrame(img image.Image) error {
	if err := png.Encode(e.stdin, img); err != nil {
		return fmt.Errorf("pipe frame: %w\nffmpeg: %s", err, e.stderr.String())
	}
	return nil
}

func (e *ffmpegEncoder) finish() error {
	e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encoding failed: %w\nstderr: %s", err, e.stderr.String())
	}

	info, err := os.Stat(e.opts.OutputPath)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	e.opts.logf("[Export] encoded %s (%d bytes)", e.opts.OutputPath, info.Size())
	return nil
}

func (e *ffmpegEncoder) kill() {
	e.stdin.Close()
	if e.cmd.Process != nil {
		e.cmd.Process.Kill()
	}
}

func (e *ffmpegEncoder) path() string { return e.opts.OutputPath }

// mjpegEncoder is the decoder-free fallback: Motion JPEG in an AVI
// container, silent, playable everywhere without external tooling.
type mjpegEncoder struct {
	opts   encoderOptions
	writer mjpeg.AviWriter
	buf    bytes.Buffer
}

func newMJPEGEncoder(opts encoderOptions) (*mjpegEncoder, error) {
	writer, err := mjpeg.New(opts.OutputPath, int32(opts.Width), int32(opts.Height), int32(opts.FPS))
	if err != nil {
		return nil, fmt.Errorf("create avi writer: %w", err)
	}
	return &mjpegEncoder{opts: opts, writer: writer}, nil
}

func (e *mjpegEncoder) addFrame(img image.Image) error {
	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: mjpegQuality}); err != nil {
		return fmt.Errorf("encode jpeg frame: %w", err)
	}
	if err := e.writer.AddFrame(e.buf.Bytes()); err != nil {
		return fmt.Errorf("add avi frame: %w", err)
	}
	return nil
}

func (e *mjpegEncoder) finish() error {
	if err := e.writer.Close(); err != nil {
		return fmt.Errorf("finalize avi: %w", err)
	}
	e.opts.logf("[Export] encoded %s", e.opts.OutputPath)
	return nil
}

func (e *mjpegEncoder) kill() {
	e.writer.Close()
}

func (e *mjpegEncoder) path() string { return e.opts.OutputPath }
