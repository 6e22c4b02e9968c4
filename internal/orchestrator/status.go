package orchestrator

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"castbot/pkg/logx"
)

// DefaultIdleText is written when nothing is pending for the rest of the day.
const DefaultIdleText = "All Time HITS"

// StatusPublisher renders the rest of today's queue into the pending file.
type StatusPublisher struct {
	reg   *Registry
	path  string
	idle  string
	log   logx.Logger
	write func(path string, data []byte) error

	last string
}

func NewStatusPublisher(reg *Registry, path, idleText string, log logx.Logger) *StatusPublisher {
	if strings.TrimSpace(idleText) == "" {
		idleText = DefaultIdleText
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StatusPublisher{reg: reg, path: path, idle: idleText, log: log, write: writeFileAtomic}
}

// Render returns the pending file content: one "03:04 PM | title | user" line
// per upcoming trigger, or the idle text.
func (p *StatusPublisher) Render(now time.Time) string {
	up := p.reg.Upcoming(now, 0)
	if len(up) == 0 {
		return p.idle + "\n"
	}
	var b strings.Builder
	for _, t := range up {
		b.WriteString(t.FireAt.Format("03:04 PM"))
		b.WriteString(" | ")
		b.WriteString(t.Title)
		b.WriteString(" | ")
		b.WriteString(t.User)
		b.WriteByte('\n')
	}
	return b.String()
}

// Publish writes the current rendering.
func (p *StatusPublisher) Publish(now time.Time) error {
	text := p.Render(now)
	if err := p.write(p.path, []byte(text)); err != nil {
		return err
	}
	if text != p.last {
		p.log.Debug("pending queue updated", logx.Int("bytes", len(text)))
		p.last = text
	}
	return nil
}

// writeFileAtomic replaces path so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	return renameio.WriteFile(path, data, 0o644)
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
