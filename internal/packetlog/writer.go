// Package packetlog appends decoded packets to one text file per system.
package packetlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/pts_listener/internal/models"
)

// Writer appends packet records to pts_<system>.log under dir. A Writer with
// an empty dir discards everything.
type Writer struct {
	dir string
	mu  sync.Mutex
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Enabled reports whether records are written at all.
func (w *Writer) Enabled() bool {
	return w != nil && w.dir != ""
}

// Path returns the log file used for system.
func (w *Writer) Path(system uint8) string {
	return filepath.Join(w.dir, fmt.Sprintf("pts_%d.log", system))
}

// Write appends pkt as one record: every field followed by a comma, then
// "-" and a newline. Failures are logged and otherwise ignored.
func (w *Writer) Write(pkt *models.Packet) {
	if !w.Enabled() {
		return
	}
	if err := w.append(pkt.Envelope.SystemNumber, Format(pkt)); err != nil {
		log.Warn().Err(err).Uint8("system", pkt.Envelope.SystemNumber).Msg("failed to write packet log")
	}
}

func (w *Writer) append(system uint8, record string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.Path(system), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(record); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Format renders the record written for pkt.
func Format(pkt *models.Packet) string {
	var b strings.Builder
	for _, f := range pkt.Fields() {
		b.WriteString(f)
		b.WriteByte(',')
	}
	b.WriteString("-\n")
	return b.String()
}
