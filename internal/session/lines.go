package session

import (
	"errors"
	"io"
	"strings"
)

type lineResult struct {
	line string
	err  error
}

// readLines answers each request with one line from in. It reads a byte at
// a time and never buffers past the newline: the bytes after it belong to
// whatever command the line starts, which shares the same input.
func readLines(in io.Reader, requests <-chan struct{}, results chan<- lineResult) {
	for range requests {
		line, err := readLine(in)
		results <- lineResult{line: line, err: err}
	}
}

func readLine(in io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := in.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			sb.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}
	}
}
