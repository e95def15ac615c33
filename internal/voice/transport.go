package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/darkchair/maestro/internal/queue"
)

const (
	readyWait   = 5 * time.Second
	sendTimeout = 200 * time.Millisecond
)

// Transport drives one guild's voice connection: it pulls raw PCM from an
// audio stream, applies volume, encodes to Opus and paces packets onto the
// gateway at 20 ms intervals.
type Transport struct {
	mu      sync.Mutex
	vc      *discordgo.VoiceConnection
	volume  float64
	cycle   *playCycle
	guildID string
}

// playCycle is one running stream-to-voice pump.
type playCycle struct {
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
	finish     func()
	finishOnce sync.Once
	suppressed bool // guarded by the transport mutex
	paused     bool // guarded by the transport mutex
}

func (c *playCycle) requestStop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Join connects to a voice channel and wraps the connection in a Transport.
func Join(s *discordgo.Session, guildID, channelID string) (*Transport, error) {
	vc, err := s.ChannelVoiceJoin(context.Background(), guildID, channelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}

	// Kill() panics on nil channels, make sure they exist
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	return &Transport{vc: vc, volume: queue.DefaultVolume, guildID: guildID}, nil
}

// ChannelID reports the voice channel the transport is connected to.
func (t *Transport) ChannelID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.vc == nil {
		return ""
	}
	return t.vc.ChannelID
}

// Play starts pumping stream to the voice connection. Any previous cycle is
// superseded: stopped and drained without firing its finish callback.
func (t *Transport) Play(stream queue.AudioStream, volume float64, onFinish func()) error {
	t.mu.Lock()
	if t.vc == nil {
		t.mu.Unlock()
		return queue.ErrNotConnected
	}
	old := t.cycle
	if old != nil {
		old.suppressed = true
	}
	t.mu.Unlock()

	if old != nil {
		old.requestStop()
		<-old.done
	}

	c := &playCycle{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		finish: onFinish,
	}

	t.mu.Lock()
	if t.vc == nil {
		t.mu.Unlock()
		return queue.ErrNotConnected
	}
	t.volume = volume
	t.cycle = c
	vc := t.vc
	t.mu.Unlock()

	go t.run(c, vc, stream)
	return nil
}

func (t *Transport) run(c *playCycle, vc *discordgo.VoiceConnection, stream queue.AudioStream) {
	defer close(c.done)
	defer func() {
		if err := stream.Close(); err != nil {
			slog.Debug("stream close", "guildID", t.guildID, "err", err)
		}
		t.mu.Lock()
		suppressed := c.suppressed
		if t.cycle == c {
			t.cycle = nil
		}
		t.mu.Unlock()
		if !suppressed {
			c.finishOnce.Do(c.finish)
		}
	}()

	if err := waitReady(vc, readyWait); err != nil {
		slog.Error("voice connection not ready", "guildID", t.guildID, "err", err)
		return
	}

	enc, err := newEncoder()
	if err != nil {
		slog.Error("opus encoder init failed", "guildID", t.guildID, "err", err)
		return
	}
	defer enc.close()

	_ = vc.Speaking(true)
	defer func() { _ = vc.Speaking(false) }()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	send := func(pkt []byte) error {
		out := make([]byte, len(pkt))
		copy(out, pkt)
		<-ticker.C
		select {
		case vc.OpusSend <- out:
			return nil
		case <-c.stop:
			return io.EOF
		case <-time.After(sendTimeout):
			return fmt.Errorf("opus send timeout")
		}
	}

	reader := bufio.NewReaderSize(stream, 64*1024)
	frame := make([]byte, FrameBytes)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		if t.waitWhilePaused(c) {
			return
		}

		if _, err := io.ReadFull(reader, frame); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if ferr := enc.flush(send); ferr != nil && ferr != io.EOF {
					slog.Debug("encoder flush", "guildID", t.guildID, "err", ferr)
				}
				return
			}
			slog.Warn("pcm read failed", "guildID", t.guildID, "err", err)
			return
		}

		applyVolume(frame, t.currentVolume())

		if err := enc.encodeFrame(frame, send); err != nil {
			if err != io.EOF {
				slog.Warn("opus encode failed", "guildID", t.guildID, "err", err)
			}
			return
		}
	}
}

// waitWhilePaused parks the pump while the cycle is paused. It reports
// whether the cycle was stopped while waiting.
func (t *Transport) waitWhilePaused(c *playCycle) bool {
	for {
		t.mu.Lock()
		paused := c.paused
		t.mu.Unlock()
		if !paused {
			return false
		}
		select {
		case <-c.stop:
			return true
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Stop ends the active play cycle; its finish callback fires when the pump
// drains. No-op when idle.
func (t *Transport) Stop() {
	t.mu.Lock()
	c := t.cycle
	t.mu.Unlock()
	if c != nil {
		c.requestStop()
	}
}

func (t *Transport) Pause() error {
	t.mu.Lock()
	c := t.cycle
	vc := t.vc
	if c == nil {
		t.mu.Unlock()
		return queue.ErrNothingPlaying
	}
	c.paused = true
	t.mu.Unlock()

	if vc != nil {
		_ = vc.Speaking(false)
	}
	return nil
}

func (t *Transport) Resume() error {
	t.mu.Lock()
	c := t.cycle
	vc := t.vc
	if c == nil {
		t.mu.Unlock()
		return queue.ErrNothingPlaying
	}
	c.paused = false
	t.mu.Unlock()

	if vc != nil {
		_ = vc.Speaking(true)
	}
	return nil
}

func (t *Transport) SetVolume(v float64) {
	t.mu.Lock()
	t.volume = v
	t.mu.Unlock()
}

func (t *Transport) currentVolume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// Close stops any active cycle, waits for it to drain and disconnects from
// voice. Safe to call more than once.
func (t *Transport) Close() {
	t.mu.Lock()
	c := t.cycle
	if c != nil {
		c.suppressed = true
	}
	t.cycle = nil
	vc := t.vc
	t.vc = nil
	t.mu.Unlock()

	if c != nil {
		c.requestStop()
		<-c.done
	}
	if vc != nil {
		safeDisconnect(t.guildID, vc)
	}
}

func waitReady(vc *discordgo.VoiceConnection, d time.Duration) error {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if vc != nil && vc.Ready {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("not ready after %s", d)
}

// safeDisconnect tears down a voice connection, tolerating the library's
// panics around half-initialized channel state.
func safeDisconnect(guildID string, vc *discordgo.VoiceConnection) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recovered from voice disconnect panic", "guildID", guildID, "panic", r)
		}
	}()

	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	_ = vc.Speaking(false)
	time.Sleep(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = vc.Disconnect(ctx)
}

// applyVolume scales interleaved s16le samples in place, clipping at the
// int16 range.
func applyVolume(buf []byte, vol float64) {
	if vol == 1.0 {
		return
	}
	for i := 0; i+1 < len(buf); i += 2 {
		s := int16(uint16(buf[i]) | uint16(buf[i+1])<<8)
		scaled := float64(s) * vol
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		v := int16(scaled)
		buf[i] = byte(uint16(v))
		buf[i+1] = byte(uint16(v) >> 8)
	}
}
