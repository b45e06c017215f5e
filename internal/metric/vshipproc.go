package metric

import (
	"github.com/cleaveav/cleave/internal/source"
	"github.com/cleaveav/cleave/internal/vship"
)

// InitDevice prepares the GPU before any scorer is created.
func InitDevice() error {
	return vship.InitDevice()
}

func newVshipProcessor(w, h uint32, color source.Color) (processor, error) {
	return vship.NewProcessor(w, h, color)
}
