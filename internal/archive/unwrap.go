package archive

import (
	"bufio"
	"io"
)

// Unwrap presents a stored object as a sequence of data streams: the object
// itself when it is a plain file, or each data entry when it is a ZIP
// archive. fn receives the addressable path of every stream.
func Unwrap(key string, r io.Reader, suffix string, fn func(path string, body io.Reader) error) error {
	br := bufio.NewReader(r)
	if IsArchive(br) {
		return Walk(key, br, suffix, fn)
	}
	return fn(key, br)
}
