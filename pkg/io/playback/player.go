// Package playback plays synthesized clips to completion.
package playback

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/xpanvictor/voxchat/pkg/Logger"
)

var (
	ErrNoOutput = errors.New("playback: no audio output available")
	ErrNoClip   = errors.New("playback: clip has no audio")
)

// Clip is one synthesized reply. Path is set when the clip is also on disk.
type Clip struct {
	ID          uuid.UUID
	Data        []byte
	ContentType string
	Path        string
}

// Player loads, plays and unloads a clip, returning once playback finished.
type Player interface {
	Play(ctx context.Context, clip Clip) error
}

// CommandPlayer runs an external player (ffplay by default) on the clip file.
type CommandPlayer struct {
	command string
	args    []string
	logger  *Logger.Logger
}

func NewCommandPlayer(command string, args []string, logger *Logger.Logger) *CommandPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &CommandPlayer{command: command, args: args, logger: logger}
}

// Play implements Player.
func (p *CommandPlayer) Play(ctx context.Context, clip Clip) error {
	if clip.Path == "" {
		return ErrNoClip
	}
	args := append(append([]string{}, p.args...), clip.Path)
	cmd := exec.CommandContext(ctx, p.command, args...)

	out, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%w: %s not installed", ErrNoOutput, p.command)
		}
		return fmt.Errorf("%s %s: %w: %s", p.command, clip.Path, err, strings.TrimSpace(string(out)))
	}
	p.logger.Debugf("played %s with %s", clip.Path, p.command)
	return nil
}
