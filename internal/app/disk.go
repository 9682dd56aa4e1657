package app

import "syscall"

// diskInfo is the space left on the filesystem holding the recording dir.
type diskInfo struct {
	TotalBytes     uint64 `json:"total_bytes"`
	UsedBytes      uint64 `json:"used_bytes"`
	AvailableBytes uint64 `json:"available_bytes"`
}

// diskUsage returns disk usage stats for the given path, or nil on error.
func diskUsage(path string) *diskInfo {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return nil
	}
	total := stat.Blocks * uint64(stat.Bsize)
	avail := stat.Bavail * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	return &diskInfo{
		TotalBytes:     total,
		UsedBytes:      total - free,
		AvailableBytes: avail,
	}
}
