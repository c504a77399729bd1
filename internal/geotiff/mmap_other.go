//go:build !unix

package geotiff

import "fmt"

// mmapFile is unavailable on this platform.
func mmapFile(fd uintptr, size int) ([]byte, error) {
	return nil, fmt.Errorf("memory mapping is not supported on this platform")
}

// munmapFile is a no-op on platforms without mmapFile.
func munmapFile(data []byte) error {
	return nil
}
