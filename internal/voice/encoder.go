package voice

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

type StreamOptions struct {
	// Volume is a multiplier, 1 keeps the source level.
	Volume float64
	// Passes is the redundancy level; above 1 it turns on opus in-band FEC
	// tuned for the matching expected packet loss.
	Passes int
}

// Encoder produces an Ogg/Opus stream (48kHz stereo, 20ms frames) from input.
type Encoder interface {
	Encode(ctx context.Context, input string, opts StreamOptions) (io.ReadCloser, error)
}

type FFmpegEncoder struct {
	Binary  string
	Bitrate string
}

func NewFFmpegEncoder(binary string) *FFmpegEncoder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegEncoder{Binary: binary, Bitrate: "96k"}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, input string, opts StreamOptions) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, e.Binary, e.args(input, opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}

	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &ffmpegStream{ReadCloser: stdout, cmd: cmd, cancel: cancel, stderr: stderr, input: input}, nil
}

func (e *FFmpegEncoder) args(input string, opts StreamOptions) []string {
	volume := opts.Volume
	if volume <= 0 {
		volume = 1
	}

	var args []string
	if isNetworkInput(input) {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	args = append(args,
		"-i", input,
		"-vn",
		"-af", fmt.Sprintf("volume=%.2f", volume),
		"-c:a", "libopus",
		"-ar", "48000",
		"-ac", "2",
		"-b:a", e.Bitrate,
		"-vbr", "on",
		"-frame_duration", "20",
		"-application", "audio",
	)

	if opts.Passes > 1 {
		args = append(args,
			"-fec", "1",
			"-packet_loss", strconv.Itoa(expectedPacketLoss(opts.Passes)),
		)
	}

	return append(args,
		"-f", "ogg",
		"-loglevel", "warning",
		"pipe:1",
	)
}

func expectedPacketLoss(passes int) int {
	return min(100, (passes-1)*10)
}

func isNetworkInput(input string) bool {
	lower := strings.ToLower(input)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

type ffmpegStream struct {
	io.ReadCloser
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr *tailBuffer
	input  string
	once   sync.Once
}

func (s *ffmpegStream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ReadCloser.Close()
		if waitErr := s.cmd.Wait(); waitErr != nil {
			if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
				log.Debug().Err(waitErr).Str("input", s.input).Str("stderr", msg).Msg("ffmpeg exited")
			}
		}
	})
	return err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
