package export

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConverter_Supported(t *testing.T) {
	tests := []struct {
		goos string
		want bool
	}{
		{"windows", true},
		{"linux", false},
		{"darwin", false},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			c := &Converter{Command: "wevtutil", GOOS: tt.goos}
			assert.Equal(t, tt.want, c.Supported())
		})
	}
}

func TestConverter_ConvertUnsupported(t *testing.T) {
	c := &Converter{Command: "wevtutil", GOOS: "linux"}
	out := filepath.Join(t.TempDir(), "Security.xml")

	err := c.Convert(context.Background(), "Security.evtx", out)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)
	assert.NoFileExists(t, out)
}

func TestConverter_CommandFailure(t *testing.T) {
	c := &Converter{Command: filepath.Join(t.TempDir(), "no-such-wevtutil"), GOOS: "windows"}

	err := c.Convert(context.Background(), "Security.evtx", filepath.Join(t.TempDir(), "Security.xml"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Security.evtx")
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []string{"qe", `C:\logs\Security.evtx`, "/lf:true", "/f:xml"}, Args(`C:\logs\Security.evtx`))
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "Security.xml"), OutputName("out", filepath.Join("in", "Security.evtx")))
	assert.Equal(t, filepath.Join("out", "app.log.xml"), OutputName("out", "app.log.evtx"))
}
