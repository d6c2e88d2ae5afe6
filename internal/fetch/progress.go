package fetch

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
)

const progressStep = 10.0

// progressWriter logs download progress in fixed percentage steps when the
// total size is known.
type progressWriter struct {
	w             io.Writer
	total         int64
	complete      int64
	nextThreshold float64
	loggedFinal   bool
	log           logr.Logger
}

func newProgressWriter(w io.Writer, total int64, log logr.Logger) *progressWriter {
	return &progressWriter{w: w, total: total, nextThreshold: progressStep, log: log}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.complete += int64(n)
	if p.total <= 0 {
		return n, err
	}

	percent := (float64(p.complete) / float64(p.total)) * 100
	for percent >= p.nextThreshold && p.nextThreshold < 100 {
		p.log.V(1).Info(
			"download progress update",
			"percentage", fmt.Sprintf("%.0f%%", p.nextThreshold),
			"complete", humanize.IBytes(uint64(p.complete)),
			"total", humanize.IBytes(uint64(p.total)),
		)
		p.nextThreshold += progressStep
	}
	if percent >= 100 && !p.loggedFinal {
		p.logFinal()
	}
	return n, err
}

func (p *progressWriter) finish() {
	if !p.loggedFinal {
		p.logFinal()
	}
}

func (p *progressWriter) logFinal() {
	p.loggedFinal = true
	p.log.V(1).Info(
		"download progress update",
		"percentage", "100%",
		"complete", humanize.IBytes(uint64(p.complete)),
	)
}
