package scheduler

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// processRSS samples the resident set size of this process in bytes.
func processRSS() (int64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return int64(info.RSS), nil
}
