package audio

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg mimics the codec: it records its arguments, writes a partial
// file, and fails for inputs whose name contains "corrupt".
const fakeFFmpeg = `#!/bin/sh
in=""; prev=""; out=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then in="$a"; fi
  prev="$a"; out="$a"
done
echo "$@" > "$FAKE_FFMPEG_ARGS"
printf 'partial' > "$out"
case "$in" in
  *corrupt*) echo "Invalid data found when processing input" >&2; exit 1 ;;
esac
printf 'RIFF----WAVEfmt ' > "$out"
`

func newFakeTranscoder(t *testing.T) (*FFmpeg, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script codec stub requires a POSIX shell")
	}
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(fakeFFmpeg), 0o755))
	argsFile := filepath.Join(dir, "args.txt")
	t.Setenv("FAKE_FFMPEG_ARGS", argsFile)
	return NewFFmpeg(bin, zerolog.Nop()), argsFile
}

func writeSource(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("ID3-audio"), 0o644))
	return p
}

func TestTranscode_Success(t *testing.T) {
	ff, argsFile := newFakeTranscoder(t)
	src := writeSource(t, "vowel_a.mp3")
	dst := filepath.Join(t.TempDir(), "vowel_a.wav")

	out, err := ff.Transcode(context.Background(), src, dst, 16000)
	require.NoError(t, err)
	assert.Equal(t, dst, out)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "RIFF"))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	for _, want := range []string{"-acodec pcm_s16le", "-ac 1", "-ar 16000", "-f wav"} {
		assert.Contains(t, string(args), want)
	}
}

func TestTranscode_DefaultSampleRate(t *testing.T) {
	ff, argsFile := newFakeTranscoder(t)
	src := writeSource(t, "count.m4a")
	_, err := ff.Transcode(context.Background(), src, filepath.Join(t.TempDir(), "count.wav"), 0)
	require.NoError(t, err)

	args, _ := os.ReadFile(argsFile)
	assert.Contains(t, string(args), "-ar 44100")
}

func TestTranscode_MissingSource(t *testing.T) {
	ff, _ := newFakeTranscoder(t)
	dstDir := t.TempDir()
	_, err := ff.Transcode(context.Background(), filepath.Join(dstDir, "gone.mp3"), filepath.Join(dstDir, "gone.wav"), 16000)
	require.Error(t, err)

	var te *TranscodeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "open", te.Op)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	appErr := AppError(err)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)

	entries, _ := os.ReadDir(dstDir)
	assert.Empty(t, entries)
}

func TestTranscode_CodecFailureLeavesNoPartialFile(t *testing.T) {
	ff, _ := newFakeTranscoder(t)
	src := writeSource(t, "corrupt_clip.aac")
	dstDir := t.TempDir()
	dst := filepath.Join(dstDir, "corrupt_clip.wav")

	_, err := ff.Transcode(context.Background(), src, dst, 16000)
	require.Error(t, err)

	var te *TranscodeError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "encode", te.Op)
	assert.Contains(t, te.Stderr, "Invalid data")
	assert.Equal(t, http.StatusInternalServerError, AppError(err).HTTPStatus)

	entries, _ := os.ReadDir(dstDir)
	assert.Empty(t, entries, "no partial output may remain")
}

func TestTranscode_KeepsExistingTarget(t *testing.T) {
	ff, _ := newFakeTranscoder(t)
	src := writeSource(t, "vowel_a.mp3")
	dstDir := t.TempDir()
	dst := filepath.Join(dstDir, "Asha_Menon_vowel_a_2026-03-05.wav")
	require.NoError(t, os.WriteFile(dst, []byte("first-patient-audio"), 0o640))

	_, err := ff.Transcode(context.Background(), src, dst, 16000)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrExist)

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "first-patient-audio", string(b))

	entries, _ := os.ReadDir(dstDir)
	assert.Len(t, entries, 1, "the staged output must be removed")
}

func TestTranscode_MissingBinary(t *testing.T) {
	ff := NewFFmpeg(filepath.Join(t.TempDir(), "no-such-ffmpeg"), zerolog.Nop())
	src := writeSource(t, "a.wav")
	_, err := ff.Transcode(context.Background(), src, filepath.Join(t.TempDir(), "a.wav"), 16000)
	require.Error(t, err)
	assert.Equal(t, "DEPENDENCY_FAILURE", AppError(err).Code)
}

func TestArgs(t *testing.T) {
	args := Args("in.mp3", "out.wav", 22050)
	assert.Equal(t, "out.wav", args[len(args)-1])
	assert.Contains(t, strings.Join(args, " "), "-i in.mp3")
}
