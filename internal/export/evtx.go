// Package export converts native .evtx logs to XML through the host's
// wevtutil utility. Only Windows ships the tool, so everywhere else the
// conversion reports ErrUnsupportedPlatform and the caller must supply XML.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrUnsupportedPlatform is returned when no converter exists on this host.
var ErrUnsupportedPlatform = errors.New("evtx conversion requires windows")

// Converter runs wevtutil to turn an .evtx file into an XML export.
type Converter struct {
	// Command is the converter binary, "wevtutil" unless overridden.
	Command string
	// GOOS is the target platform, runtime.GOOS unless overridden.
	GOOS string
}

// NewConverter returns a converter for the current host.
func NewConverter() *Converter {
	return &Converter{Command: "wevtutil", GOOS: runtime.GOOS}
}

// Supported reports whether conversion can run on this host.
func (c *Converter) Supported() bool {
	return c.GOOS == "windows"
}

// Convert exports every event of evtx as XML into outXML.
func (c *Converter) Convert(ctx context.Context, evtx, outXML string) error {
	if !c.Supported() {
		return ErrUnsupportedPlatform
	}

	out, err := os.Create(outXML)
	if err != nil {
		return fmt.Errorf("create %s: %w", outXML, err)
	}
	defer out.Close()

	var stderr strings.Builder
	cmd := exec.CommandContext(ctx, c.Command, Args(evtx)...)
	cmd.Stdout = out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", c.Command, evtx, err, strings.TrimSpace(stderr.String()))
	}
	return out.Close()
}

// Args returns the wevtutil arguments that query a log file as XML.
func Args(evtx string) []string {
	return []string{"qe", evtx, "/lf:true", "/f:xml"}
}

// OutputName derives the XML file name used for a converted .evtx file.
func OutputName(dir, evtx string) string {
	base := strings.TrimSuffix(filepath.Base(evtx), filepath.Ext(evtx))
	return filepath.Join(dir, base+".xml")
}
