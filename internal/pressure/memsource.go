package pressure

import (
	"errors"

	"github.com/pbnjay/memory"
)

// SystemSource samples system memory through the OS.
type SystemSource struct{}

// Sample reports total and used bytes for the whole machine.
func (SystemSource) Sample() (Sample, error) {
	total := memory.TotalMemory()
	if total == 0 {
		return Sample{}, errors.New("total system memory unavailable")
	}
	free := memory.FreeMemory()
	if free > total {
		free = total
	}
	return Sample{Used: total - free, Total: total}, nil
}
