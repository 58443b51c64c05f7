//go:build !unix

package fsutil

import "io/fs"

type fileID struct{}

func hardLinkID(fs.FileInfo) (fileID, bool) {
	return fileID{}, false
}
