package memory

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// ResidentBytes reads the process RSS from /proc, falling back to the Go
// heap accounting on platforms without procfs.
func ResidentBytes() uint64 {
	if fs, err := procfs.NewDefaultFS(); err == nil {
		if p, err := fs.Self(); err == nil {
			if stat, err := p.Stat(); err == nil {
				return uint64(stat.ResidentMemory())
			}
		}
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse + ms.StackInuse
}
