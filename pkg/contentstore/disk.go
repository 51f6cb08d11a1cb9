package contentstore

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

// displayDiskUsage logs the disk usage of the volume holding path, so
// operators see the free-space situation at startup.
func displayDiskUsage(log *logrus.Logger, path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage for %s: %w", path, err)
	}

	log.WithFields(logrus.Fields{
		"path":       path,
		"total (GB)": fmt.Sprintf("%.2f", float64(usage.Total)/1e9),
		"used (GB)":  fmt.Sprintf("%.2f", float64(usage.Used)/1e9),
		"free (GB)":  fmt.Sprintf("%.2f", float64(usage.Free)/1e9),
		"used %":     fmt.Sprintf("%.1f", usage.UsedPercent),
	}).Info("content store disk usage")

	return nil
}
