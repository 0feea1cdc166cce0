// Copyright 2023 Greptime Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"sigs.k8s.io/kind/pkg/log"
)

// ansiYellow, ansiRed and ansiBlue are the three colorized severities this
// logger writes; debug headers reuse ansiBlue.
const (
	ansiYellow = "\x1b[33m%s\x1b[0m"
	ansiRed    = "\x1b[31m%s\x1b[0m"
	ansiBlue   = "\x1b[34m%s\x1b[0m"
)

// Logger is the mf CLI's logging façade over sigs.k8s.io/kind's
// log.Logger, the same base type gtctl wraps. Fatalf is the one addition
// on top of kind's interface: mf's root command needs a single place to
// report a startup failure (an unreadable or invalid config file) and exit,
// instead of every call site pairing Error/Errorf with its own os.Exit(1).
type Logger interface {
	log.Logger
	Fatalf(format string, args ...interface{})
}

// logger implements Logger. Lifted from kind's own internal CLI logger:
// a mutex-guarded writer, a pooled *bytes.Buffer per formatted call, and a
// tagLabel prefix (set by WithTag) so every line can be stamped without
// every call site repeating the prefix by hand.
type logger struct {
	writer     io.Writer
	writerMu   sync.Mutex
	verbosity  log.Level
	bufferPool *bufferPool
	colored    bool
	tagLabel   string
}

var _ Logger = &logger{}

type Option func(*logger)

func Bold(s string) string {
	return color.New(color.FgHiWhite, color.Bold).SprintfFunc()(s)
}

// New returns a new logger with the given verbosity.
func New(writer io.Writer, verbosity log.Level, opts ...Option) Logger {
	l := &logger{
		writer:     writer,
		verbosity:  verbosity,
		bufferPool: newBufferPool(),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func WithColored() Option {
	return func(l *logger) {
		l.colored = true
	}
}

// WithTag stamps every line this logger writes with "[tag] " - e.g. the
// mf root command tags all of its output with "mf".
func WithTag(tag string) Option {
	return func(l *logger) {
		l.tagLabel = tag
	}
}

func (l *logger) tag(s string) string {
	if l.tagLabel == "" {
		return s
	}
	return "[" + l.tagLabel + "] " + s
}

func (l *logger) colorize(ansiFormat, s string) string {
	if !l.colored {
		return s
	}
	return fmt.Sprintf(ansiFormat, s)
}

// Warn is part of the log.logger interface.
func (l *logger) Warn(message string) {
	l.print(l.colorize(ansiYellow, l.tag(message)))
}

// Warnf is part of the log.logger interface.
func (l *logger) Warnf(format string, args ...interface{}) {
	l.printf(l.colorize(ansiYellow, l.tag(format)), args...)
}

// Error is part of the log.logger interface.
func (l *logger) Error(message string) {
	l.print(l.colorize(ansiRed, l.tag(message)))
}

// Errorf is part of the log.logger interface.
func (l *logger) Errorf(format string, args ...interface{}) {
	l.printf(l.colorize(ansiRed, l.tag(format)), args...)
}

// Fatalf prints like Errorf and then exits the process with status 1.
func (l *logger) Fatalf(format string, args ...interface{}) {
	l.Errorf(format, args...)
	os.Exit(1)
}

// V is part of the log.logger interface.
func (l *logger) V(level log.Level) log.InfoLogger {
	return infoLogger{
		logger:  l,
		level:   level,
		enabled: level <= l.getVerbosity(),
	}
}

// SetVerbosity sets the loggers verbosity.
func (l *logger) SetVerbosity(verbosity log.Level) {
	atomic.StoreInt32((*int32)(&l.verbosity), int32(verbosity))
}

// infoLogger implements log.InfoLogger for logger.
type infoLogger struct {
	logger  *logger
	level   log.Level
	enabled bool
}

// Enabled is part of the log.InfoLogger interface.
func (i infoLogger) Enabled() bool {
	return i.enabled
}

// Info is part of the log.InfoLogger interface.
func (i infoLogger) Info(message string) {
	if !i.enabled {
		return
	}
	// for > 0, we are writing debug messages, include extra info
	if i.level > 0 {
		i.logger.debug(message)
	} else {
		i.logger.print(i.logger.tag(message))
	}
}

// Infof is part of the log.InfoLogger interface.
func (i infoLogger) Infof(format string, args ...interface{}) {
	if !i.enabled {
		return
	}
	// for > 0, we are writing debug messages, include extra info.
	if i.level > 0 {
		i.logger.debugf(format, args...)
	} else {
		i.logger.printf(i.logger.tag(format), args...)
	}
}

// synchronized write to the inner writer
func (l *logger) write(p []byte) (n int, err error) {
	l.writerMu.Lock()
	defer l.writerMu.Unlock()
	return l.writer.Write(p)
}

// writeBuffer writes buf with write, ensuring there is a trailing newline.
func (l *logger) writeBuffer(buf *bytes.Buffer) {
	// ensure trailing newline
	if buf.Len() == 0 || buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}
	// TODO: should we handle this somehow??
	// Who logs for the logger? 🤔
	_, _ = l.write(buf.Bytes())
}

// print writes a simple string to the log writer.
func (l *logger) print(message string) {
	buf := bytes.NewBufferString(message)
	l.writeBuffer(buf)
}

// printf is roughly fmt.Fprintf against the log writer.
func (l *logger) printf(format string, args ...interface{}) {
	buf := l.bufferPool.Get()
	fmt.Fprintf(buf, format, args...)
	l.writeBuffer(buf)
	l.bufferPool.Put(buf)
}

// debug is like print but with a debug log header.
func (l *logger) debug(message string) {
	buf := l.bufferPool.Get()
	l.addDebugHeader(buf)
	buf.WriteString(l.colorize(ansiBlue, l.tag(message)))
	l.writeBuffer(buf)
	l.bufferPool.Put(buf)
}

// debugf is like printf but with a debug log header.
func (l *logger) debugf(format string, args ...interface{}) {
	buf := l.bufferPool.Get()
	l.addDebugHeader(buf)
	fmt.Fprintf(buf, l.colorize(ansiBlue, l.tag(format)), args...)
	l.writeBuffer(buf)
	l.bufferPool.Put(buf)
}

// addDebugHeader inserts the debug line header to buf.
func (l *logger) addDebugHeader(buf *bytes.Buffer) {
	_, file, line, ok := runtime.Caller(3)
	// lifted from klog
	if !ok {
		file = "???"
		line = 1
	} else {
		if slash := strings.LastIndex(file, "/"); slash >= 0 {
			path := file
			file = path[slash+1:]
			if dirsep := strings.LastIndex(path[:slash], "/"); dirsep >= 0 {
				file = path[dirsep+1:]
			}
		}
	}
	buf.Grow(len(file) + 11) // we know at least this many bytes are needed
	if l.colored {
		buf.WriteString("\x1b[34m")
	}
	buf.WriteString("DEBUG: ")
	buf.WriteString(file)
	buf.WriteByte(':')
	fmt.Fprintf(buf, "%d", line)
	buf.WriteByte(']')
	buf.WriteByte(' ')
	if l.colored {
		buf.WriteString("\x1b[0m")
	}
}

func (l *logger) getVerbosity() log.Level {
	return log.Level(atomic.LoadInt32((*int32)(&l.verbosity)))
}

// bufferPool is a type safe sync.Pool of *byte.Buffer, guaranteed to be Reset.
type bufferPool struct {
	sync.Pool
}

// newBufferPool returns a new bufferPool
func newBufferPool() *bufferPool {
	return &bufferPool{
		sync.Pool{
			New: func() interface{} {
				// The Pool's New function should generally only return pointer
				// types, since a pointer can be put into the return interface
				// value without an allocation.
				return new(bytes.Buffer)
			},
		},
	}
}

// Get obtains a buffer from the pool.
func (b *bufferPool) Get() *bytes.Buffer {
	return b.Pool.Get().(*bytes.Buffer)
}

// Put returns a buffer to the pool, resetting it first.
func (b *bufferPool) Put(x *bytes.Buffer) {
	// only store small buffers to avoid pointless allocation
	// avoid keeping arbitrarily large buffers
	if x.Len() > 256 {
		return
	}
	x.Reset()
	b.Pool.Put(x)
}
