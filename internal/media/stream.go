package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// PCMStream is the audio byte stream produced by an ffmpeg subprocess
// (s16le, 48 kHz, stereo on stdout) together with the handle that kills it.
type PCMStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// StartPCMStream spawns ffmpeg decoding inputURL to raw PCM. The returned
// stream owns the process: Close kills it exactly once.
func StartPCMStream(ctx context.Context, inputURL string) (*PCMStream, error) {
	ctx2, cancel := context.WithCancel(ctx)

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5",
		"-i", inputURL,
		"-vn",
		"-ac", "2",
		"-ar", "48000",
		"-f", "s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx2, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg start: %w (stderr: %s)", err, stderr.String())
	}

	return &PCMStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		cancel: cancel,
	}, nil
}

func (s *PCMStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Close terminates the decoder process. Safe to call repeatedly; the kill
// happens at most once.
func (s *PCMStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.closeErr = s.cmd.Wait()
	})
	return s.closeErr
}
