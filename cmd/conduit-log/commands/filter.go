package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/conduit-mq/conduit-go/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	ConnID    string
	TimeStart string
	TimeEnd   string
	Direction string
	Category  string
}

// buildFilter converts the string options into a log.Filter.
func buildFilter(opts FilterOptions) (*log.Filter, error) {
	filter := &log.Filter{ConnectionID: opts.ConnID}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return nil, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return nil, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = &c
	}

	return filter, nil
}

// RunFilter filters the log file and writes matching events to a new file.
func RunFilter(path string, opts FilterOptions, output io.Writer) error {
	filter, err := buildFilter(opts)
	if err != nil {
		return err
	}

	events, err := log.ReadFile(path, filter)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output logger: %w", err)
	}
	defer logger.Close()

	for _, event := range events {
		logger.Log(event)
	}

	fmt.Fprintf(output, "Filtered %d events to %s\n", len(events), opts.Output)
	return nil
}
