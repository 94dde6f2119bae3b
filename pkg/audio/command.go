package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
)

// CommandPlayer plays WAV buffers by piping them to an external playback
// command such as aplay or ffplay. Each Play spawns a fresh process with the
// buffer on stdin; Stop kills the running process.
type CommandPlayer struct {
	command string
	args    []string

	mu     sync.Mutex
	cmd    *exec.Cmd
	closed bool
}

var _ Player = (*CommandPlayer)(nil)

// NewCommandPlayer returns a player that pipes WAV data to command. The
// command must read audio from stdin.
func NewCommandPlayer(command string, args ...string) (*CommandPlayer, error) {
	if command == "" {
		return nil, errors.New("audio: playback command must not be empty")
	}
	return &CommandPlayer{command: command, args: args}, nil
}

// DefaultPlaybackCommand returns the first WAV-capable playback command found
// on PATH together with the arguments needed to read from stdin. It returns
// an error when no known command is installed.
func DefaultPlaybackCommand() (string, []string, error) {
	candidates := []struct {
		name string
		args []string
	}{
		{"aplay", []string{"-q"}},
		{"paplay", nil},
		{"ffplay", []string{"-autoexit", "-nodisp", "-loglevel", "quiet", "-"}},
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c.name); err == nil {
			return c.name, c.args, nil
		}
	}
	return "", nil, errors.New("audio: no playback command found on PATH")
}

// Play starts a playback process for wav. A process still running from a
// previous Play is killed first.
func (p *CommandPlayer) Play(ctx context.Context, wav []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("audio: player is closed")
	}
	p.stopLocked()

	cmd := exec.Command(p.command, p.args...)
	cmd.Stdin = bytes.NewReader(wav)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %s: %w", p.command, err)
	}
	p.cmd = cmd

	go func() {
		_ = cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// Stop kills the current playback process, if any.
func (p *CommandPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *CommandPlayer) stopLocked() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Kill()
	p.cmd = nil
}

// Close stops playback and marks the player unusable.
func (p *CommandPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.closed = true
	return nil
}

// NopPlayer discards every buffer it is handed. It backs headless operation
// when no playback command is available.
type NopPlayer struct{}

var _ Player = NopPlayer{}

func (NopPlayer) Play(ctx context.Context, _ []byte) error { return ctx.Err() }
func (NopPlayer) Stop()                                    {}
func (NopPlayer) Close() error                             { return nil }
