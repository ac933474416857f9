package pixelsafe

import (
	"fmt"
	"log/slog"
)

// ProgressEvent reports conversion progress for one document.
type ProgressEvent struct {
	DocumentID string
	Error      bool
	Message    string
	// Percent is in [0, 100]; it is 0 for errors.
	Percent float64
}

// ProgressFunc receives progress events synchronously, on the goroutine
// running the conversion.
type ProgressFunc func(ProgressEvent)

// reportProgress logs the event and forwards it to the sink, if any.
func (c *Converter) reportProgress(doc Document, isError bool, message string, percent float64) {
	line := fmt.Sprintf("[doc %s] %d%% %s", doc.ID(), int(percent), message)
	if isError {
		c.logger.Error(line)
	} else {
		c.logger.Info(line)
	}

	if c.cfg.progress != nil {
		c.cfg.progress(ProgressEvent{
			DocumentID: doc.ID(),
			Error:      isError,
			Message:    message,
			Percent:    percent,
		})
	}
}

// pageProgress spreads 100% uniformly over n pages, two steps per page.
type pageProgress struct {
	steps int
	done  int
}

func newPageProgress(pages int) *pageProgress {
	return &pageProgress{steps: 2 * pages}
}

// advance moves one step and returns the new percentage. The last step
// is exactly 100.
func (p *pageProgress) advance() float64 {
	if p.done < p.steps {
		p.done++
	}
	return float64(p.done) * 100 / float64(p.steps)
}

// discardLogger drops every record.
func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
