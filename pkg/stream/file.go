// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/jontk/qss-sim/internal/core/job"
	qsserrors "github.com/jontk/qss-sim/pkg/errors"
	"github.com/jontk/qss-sim/pkg/logging"
)

// FileOptions configures a FileStream.
type FileOptions struct {
	// Path is the replay file. Required.
	Path string

	// Source overrides the file's own "source" field (5th CSV field),
	// when set.
	Source string

	// TimeLimit, if set, bounds replay: the file is looped from the
	// top, accumulating arrival_delta onto a running cumulative
	// arrival timestamp, until the next arrival would exceed it.
	TimeLimit *float64
}

// FileStream replays jobs from a comma-separated file, looping the
// file until TimeLimit is reached. It supports 3/4/5/6-field rows:
// arrival_delta,execution_time,num_nodes[,...] or
// arrival_delta,wall_time,execution_time,num_nodes[,...], with source
// and label as optional trailing fields.
type FileStream struct {
	opts FileOptions

	cumulativeArrival float64
	lastArrival       float64
	sawAnyRow         bool

	scanner *bufio.Scanner
	file    *os.File
}

// NewFileStream opens Path for replay. It returns an IOError if the
// file does not exist or cannot be opened.
func NewFileStream(opts FileOptions) (*FileStream, error) {
	if opts.Path == "" {
		return nil, qsserrors.NewConfigError("file stream requires a path")
	}

	s := &FileStream{opts: opts}
	if err := s.openFromTop(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStream) openFromTop() error {
	if s.file != nil {
		s.file.Close()
	}

	f, err := os.Open(s.opts.Path)
	if err != nil {
		return qsserrors.NewIOError("cannot open replay file", err)
	}

	s.file = f
	s.scanner = bufio.NewScanner(f)
	return nil
}

// row is one parsed replay line.
type row struct {
	arrivalDelta  float64
	wallTime      float64
	executionTime float64
	numNodes      int
	source        string
	label         string
	hasWallTime   bool
	hasSource     bool
	hasLabel      bool
}

func parseRow(line string) (row, bool) {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	delta, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return row{}, false
	}

	r := row{arrivalDelta: delta}

	parseNumNodes := func(s string) (int, bool) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return int(f), true
	}

	switch len(fields) {
	case 3:
		exec, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return row{}, false
		}
		nodes, ok := parseNumNodes(fields[2])
		if !ok {
			return row{}, false
		}
		r.executionTime = exec
		r.numNodes = nodes
	case 4, 5, 6:
		wall, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return row{}, false
		}
		exec, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return row{}, false
		}
		nodes, ok := parseNumNodes(fields[3])
		if !ok {
			return row{}, false
		}
		r.wallTime, r.hasWallTime = wall, true
		r.executionTime = exec
		r.numNodes = nodes
		if len(fields) >= 5 {
			r.source, r.hasSource = fields[4], true
		}
		if len(fields) == 6 {
			r.label, r.hasLabel = fields[5], true
		}
	default:
		return row{}, false
	}

	return r, true
}

// Next returns the next replayed job, looping the file from the top
// when exhausted, until TimeLimit is reached (or forever, if unset —
// the simulator's own time_limit guard then bounds the run).
func (s *FileStream) Next() (*job.Job, bool, error) {
	for {
		if s.scanner.Scan() {
			line := s.scanner.Text()
			if line == "" {
				continue
			}

			r, ok := parseRow(line)
			if !ok {
				continue
			}

			arrival := s.cumulativeArrival + r.arrivalDelta
			if s.opts.TimeLimit != nil && arrival > *s.opts.TimeLimit {
				continue
			}
			if r.executionTime == 0 {
				continue
			}

			s.cumulativeArrival = arrival
			s.lastArrival = arrival
			s.sawAnyRow = true

			source := s.opts.Source
			if r.hasSource && s.opts.Source == "" {
				source = logging.SanitizeString(r.source)
			}
			if source == "" {
				source = DefaultSourceLabel
			}

			wallTime := 0.0
			if r.hasWallTime {
				wallTime = r.wallTime
			}

			return job.New(r.executionTime, r.numNodes, source, arrival, wallTime, logging.SanitizeString(r.label)), true, nil
		}

		if err := s.scanner.Err(); err != nil {
			return nil, false, qsserrors.NewIOError("error reading replay file", err)
		}

		if s.opts.TimeLimit == nil || !s.sawAnyRow {
			return nil, false, nil
		}

		s.cumulativeArrival = s.lastArrival
		if err := s.openFromTop(); err != nil {
			return nil, false, err
		}
		s.sawAnyRow = false
	}
}

// Close releases the underlying file handle.
func (s *FileStream) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
