package hostlink

import (
	"context"
	"fmt"
	"time"
)

// AreaReader is what the poller needs from a master.
type AreaReader interface {
	ReadArea(ctx context.Context, id string, unitNo uint8, area Area, bank uint8,
		beginningWord uint16, count uint16) ([]uint16, error)
}

// PollBlock describes one block of consecutive items read every cycle.
type PollBlock struct {
	Name          string
	Channel       string
	UnitNo        uint8
	Area          Area
	Bank          uint8
	BeginningWord uint16
	Count         uint16
}

type PollerConfiguration struct {
	Interval time.Duration
	Blocks   []PollBlock
}

// BlockResult holds the values read for one block.
type BlockResult struct {
	Block  PollBlock
	Values []uint16
}

// PollResult is a snapshot produced by one poll cycle.
// Err is non-nil if the cycle failed, in which case Blocks is empty.
type PollResult struct {
	At     time.Time
	Blocks []BlockResult
	Err    error
}

// Poller reads a fixed set of blocks on a clock.
type Poller struct {
	conf   PollerConfiguration
	reader AreaReader
}

// NewPoller validates the block geometry and returns a poller reading
// through reader.
func NewPoller(reader AreaReader, conf *PollerConfiguration) (p *Poller, err error) {
	if conf == nil || conf.Interval <= 0 {
		err = fmt.Errorf("%w: poll interval must be > 0", ErrConfigurationError)
		return
	}

	if len(conf.Blocks) == 0 {
		err = fmt.Errorf("%w: at least one poll block required", ErrConfigurationError)
		return
	}

	for _, b := range conf.Blocks {
		if b.Channel == "" {
			err = fmt.Errorf("%w: block '%s' has no channel", ErrConfigurationError, b.Name)
			return
		}

		err = validateCommand(b.UnitNo, b.Area, b.Bank, b.BeginningWord, int(b.Count))
		if err != nil {
			err = fmt.Errorf("block '%s': %w", b.Name, err)
			return
		}
	}

	p = &Poller{
		conf:   *conf,
		reader: reader,
	}
	p.conf.Blocks = append([]PollBlock(nil), conf.Blocks...)

	return
}

// PollOnce performs exactly one poll cycle.
// Any failure aborts the cycle: a result either holds every block or none.
func (p *Poller) PollOnce(ctx context.Context) (res PollResult) {
	var blocks []BlockResult

	res.At = time.Now()

	for _, b := range p.conf.Blocks {
		values, err := p.reader.ReadArea(ctx, b.Channel, b.UnitNo, b.Area, b.Bank, b.BeginningWord, b.Count)
		if err != nil {
			res.Err = fmt.Errorf("block '%s': %w", b.Name, err)
			return
		}

		blocks = append(blocks, BlockResult{
			Block:  b,
			Values: values,
		})
	}

	res.Blocks = blocks

	return
}

// Run polls every interval and emits results on out until ctx is done.
func (p *Poller) Run(ctx context.Context, out chan<- PollResult) {
	var ticker = time.NewTicker(p.conf.Interval)

	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case out <- p.PollOnce(ctx):
			case <-ctx.Done():
				return
			}
		}
	}
}
