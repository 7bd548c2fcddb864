package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/azkar-bot/internal/audio"
	"github.com/foxseedlab/azkar-bot/internal/discord"
)

const (
	sampleRate        = 48000
	channels          = 2
	frameSamples      = 960
	maxOpusFrameBytes = 4000
	readBufferSize    = 16384
	silenceFrameCount = 5
	defaultReadyWait  = 10 * time.Second
)

var (
	errPlayerStopped = errors.New("player stopped")
	errNoAudio       = errors.New("source produced no audio")
	silenceFrame     = []byte{0xF8, 0xFF, 0xFE}
)

type frameEncoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// pcmSource yields signed 16-bit little-endian stereo PCM at 48kHz. Close
// releases the decoder and reports how it exited.
type pcmSource interface {
	io.Reader
	Close() error
}

type sourceOpener func(ctx context.Context, source string) (pcmSource, error)

// FFmpegPlayer decodes sources with ffmpeg and sends them as opus frames.
type FFmpegPlayer struct {
	conn    discord.VoiceConnection
	onEvent func(audio.Event)

	open         sourceOpener
	newEncoder   func() (frameEncoder, error)
	readyTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	runID   uint64
	stopped bool
}

// NewPlayerFactory returns a factory producing ffmpeg-backed players.
func NewPlayerFactory(ffmpegPath string) audio.PlayerFactory {
	open := ffmpegOpener(ffmpegPath)
	return func(conn discord.VoiceConnection, onEvent func(audio.Event)) audio.Player {
		return &FFmpegPlayer{
			conn:         conn,
			onEvent:      onEvent,
			open:         open,
			newEncoder:   newOpusEncoder,
			readyTimeout: defaultReadyWait,
		}
	}
}

func (p *FFmpegPlayer) Play(source string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return errPlayerStopped
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.runID++
	go p.run(ctx, p.runID, source)
	return nil
}

func (p *FFmpegPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *FFmpegPlayer) run(ctx context.Context, id uint64, source string) {
	err := p.stream(ctx, source)

	p.mu.Lock()
	current := !p.stopped && p.runID == id && ctx.Err() == nil
	if current {
		p.cancel = nil
	}
	p.mu.Unlock()
	if !current {
		return
	}

	if err != nil {
		p.onEvent(audio.Event{Kind: audio.EventError, Err: err})
		return
	}
	p.onEvent(audio.Event{Kind: audio.EventIdle})
}

func (p *FFmpegPlayer) stream(ctx context.Context, source string) error {
	if err := waitReady(ctx, p.conn, p.readyTimeout); err != nil {
		return err
	}
	if err := p.conn.Speaking(true); err != nil {
		slog.Debug("failed to set speaking state", "error", err)
	}
	defer func() {
		if p.conn.Ready() {
			_ = p.conn.Speaking(false)
		}
	}()

	for range silenceFrameCount {
		if err := p.conn.SendOpus(ctx, silenceFrame); err != nil {
			return err
		}
	}

	enc, err := p.newEncoder()
	if err != nil {
		return err
	}
	in, err := p.open(ctx, source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	frames, pumpErr := pumpFrames(ctx, in, enc, p.conn)
	closeErr := in.Close()
	if pumpErr != nil {
		return pumpErr
	}
	// A decoder that exits non-zero after some audio still failed mid-source.
	if closeErr != nil && ctx.Err() == nil {
		return fmt.Errorf("decode source after %d frames: %w", frames, closeErr)
	}
	if frames == 0 {
		return errNoAudio
	}
	return nil
}

func waitReady(ctx context.Context, conn discord.VoiceConnection, timeout time.Duration) error {
	if conn.Ready() {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return discord.ErrVoiceNotReady
		case <-ticker.C:
			if conn.Ready() {
				return nil
			}
		}
	}
}

// pumpFrames encodes whole 20ms frames from r and sends them until r is
// exhausted. A trailing partial frame is dropped.
func pumpFrames(ctx context.Context, r io.Reader, enc frameEncoder, conn discord.VoiceConnection) (int, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	raw := make([]byte, frameSamples*channels*2)
	pcm := make([]int16, frameSamples*channels)

	sent := 0
	for {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if _, err := io.ReadFull(br, raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return sent, nil
			}
			return sent, fmt.Errorf("read pcm: %w", err)
		}
		for i := range pcm {
			pcm[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
		}
		frame, err := enc.Encode(pcm)
		if err != nil {
			return sent, fmt.Errorf("encode opus: %w", err)
		}
		if err := conn.SendOpus(ctx, frame); err != nil {
			return sent, err
		}
		sent++
	}
}

type ffmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *strings.Builder
}

func (s *ffmpegStream) Read(b []byte) (int, error) {
	return s.stdout.Read(b)
}

func (s *ffmpegStream) Close() error {
	_ = s.stdout.Close()
	if err := s.cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func ffmpegOpener(ffmpegPath string) sourceOpener {
	return func(ctx context.Context, source string) (pcmSource, error) {
		cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(source)...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}
		stderr := &strings.Builder{}
		cmd.Stderr = stderr
		if err := cmd.Start(); err != nil {
			return nil, err
		}
		return &ffmpegStream{cmd: cmd, stdout: stdout, stderr: stderr}, nil
	}
}

func ffmpegArgs(source string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		args = append(args, "-reconnect", "1", "-reconnect_streamed", "1", "-reconnect_delay_max", "5")
	}
	return append(args,
		"-i", source,
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"pipe:1",
	)
}
