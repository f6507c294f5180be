// Package audio normalizes uploaded recordings to mono 16-bit PCM WAV by
// shelling out to ffmpeg.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voiceintake/intake/internal/platform/apperr"
	"github.com/voiceintake/intake/internal/platform/metrics"
)

const (
	DefaultSampleRate = 44100
	DefaultTimeout    = 2 * time.Minute

	// maxStderr bounds how much codec output is kept on a TranscodeError.
	maxStderr = 2048
)

// TranscodeError reports why a recording could not be converted. Op is
// "open" when the source is unreadable and "encode" when the codec failed.
type TranscodeError struct {
	Op     string
	Source string
	Err    error
	Stderr string
}

func (e *TranscodeError) Error() string {
	msg := fmt.Sprintf("transcode %s (%s): %v", filepath.Base(e.Source), e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// AppError maps a transcode failure onto the error taxonomy: unreadable
// input is a storage failure, anything else a dependency failure.
func AppError(err error) *apperr.AppError {
	var te *TranscodeError
	if errors.As(err, &te) && te.Op == "open" {
		return apperr.Storage(err)
	}
	return apperr.Dependency("audio transcoder", err)
}

// FFmpeg invokes an ffmpeg binary.
type FFmpeg struct {
	Path    string
	Timeout time.Duration
	Logger  zerolog.Logger
}

func NewFFmpeg(path string, logger zerolog.Logger) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Timeout: DefaultTimeout, Logger: logger}
}

// Args returns the ffmpeg argument list for one conversion.
func Args(source, target string, sampleRate int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin", "-y",
		"-i", source,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(sampleRate),
		"-f", "wav",
		target,
	}
}

// Transcode converts source into a mono 16-bit PCM WAV at target. The codec
// writes into a temporary sibling of target which is linked into place on
// success, so target either holds a complete file or does not exist. An
// existing target is never replaced.
func (f *FFmpeg) Transcode(ctx context.Context, source, target string, sampleRate int) (string, error) {
	out, err := f.transcode(ctx, source, target, sampleRate)
	metrics.RecordTranscode(err == nil)
	if err != nil {
		f.Logger.Warn().Err(err).Str("source", filepath.Base(source)).Msg("transcode failed")
	}
	return out, err
}

func (f *FFmpeg) transcode(ctx context.Context, source, target string, sampleRate int) (string, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", &TranscodeError{Op: "open", Source: source, Err: err}
	}
	if info.IsDir() {
		return "", &TranscodeError{Op: "open", Source: source, Err: fmt.Errorf("%s is a directory: %w", source, fs.ErrInvalid)}
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".transcode-*.wav")
	if err != nil {
		return "", &TranscodeError{Op: "encode", Source: source, Err: fmt.Errorf("create output: %w", err)}
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path, Args(source, tmpName, sampleRate)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w (%v)", ctx.Err(), err)
		}
		return "", &TranscodeError{Op: "encode", Source: source, Err: err, Stderr: tail(stderr.String())}
	}

	if st, err := os.Stat(tmpName); err != nil || st.Size() == 0 {
		return "", &TranscodeError{Op: "encode", Source: source, Err: errors.New("codec produced no output"), Stderr: tail(stderr.String())}
	}

	// Link fails with fs.ErrExist instead of clobbering another file.
	if err := os.Link(tmpName, target); err != nil {
		return "", &TranscodeError{Op: "encode", Source: source, Err: fmt.Errorf("finalize output: %w", err)}
	}
	return target, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
