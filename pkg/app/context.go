package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/deploymenttheory/go-rawcopy/internal/config"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Config is the merged file, environment and flag configuration
	Config *config.Config

	// Stdout receives formatted results and streamed extraction output
	Stdout io.Writer
	// Stderr receives verbose messages and errors
	Stderr io.Writer

	// StartedAt is when the command began, for progress timing
	StartedAt time.Time

	// Progress reporting
	ProgressCallback func(update ProgressUpdate)
}

// NewContext creates a new application context with default configuration
func NewContext() *Context {
	return &Context{
		Context:      context.Background(),
		OutputFormat: "table",
		Config:       config.Default(),
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		StartedAt:    time.Now(),
	}
}

// WithCancel creates a cancellable context
func (c *Context) WithCancel() (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx, cancel
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(ProgressUpdate)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback == nil {
		return
	}
	c.ProgressCallback(ProgressUpdate{
		Message:     message,
		Completed:   int64(percent),
		Total:       100,
		StartedAt:   c.StartedAt,
		ElapsedTime: time.Since(c.StartedAt),
	})
}

// Log outputs a message based on verbosity settings
func (c *Context) Log(message string) {
	if !c.Quiet && c.Verbose && c.Stderr != nil {
		fmt.Fprintln(c.Stderr, message)
	}
}

// Error outputs an error message unless quiet
func (c *Context) Error(message string) {
	if !c.Quiet && c.Stderr != nil {
		fmt.Fprintln(c.Stderr, "Error:", message)
	}
}
