package pool

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// sampleRSS reports the current process's resident set size in bytes.
// Swappable in tests.
var sampleRSS = func() (uint64, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := proc.MemoryInfo()
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}
