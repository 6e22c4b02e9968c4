// Package player drives the external playout software.
package player

import (
	"context"

	"castbot/pkg/logx"
)

// Cue is one playback request.
type Cue struct {
	Path  string
	Title string
	User  string
}

// Sink starts playback of a cue. Implementations must honor ctx cancellation.
type Sink interface {
	Play(ctx context.Context, cue Cue) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, cue Cue) error

func (f SinkFunc) Play(ctx context.Context, cue Cue) error { return f(ctx, cue) }

// DryRun only logs. Useful on machines without a player.
type DryRun struct {
	Log logx.Logger
}

func (d DryRun) Play(ctx context.Context, cue Cue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.Log.Info("dry-run playback", logx.String("path", cue.Path), logx.String("title", cue.Title), logx.String("user", cue.User))
	return nil
}
