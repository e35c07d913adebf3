package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"
)

// ErrMissingFilename is returned when no usable filename was supplied.
var ErrMissingFilename = errors.New("filename is required")

// refPrefix is the logical locator prefix for stored input media. The AI
// service resolves it against its own storage root.
const refPrefix = "/storage/input"

// ProgressSink receives advisory upload progress.
type ProgressSink interface {
	Publish(jobID string, percent int)
}

// Ingestor writes uploaded payloads into the input directory. Writes go to a
// temp name first and are renamed into place, so a partial upload is never
// visible under its final reference.
type Ingestor struct {
	dir      string
	progress ProgressSink
}

func NewIngestor(dir string, progress ProgressSink) *Ingestor {
	return &Ingestor{dir: dir, progress: progress}
}

// Ingest stores one payload and returns its logical input reference. The raw
// filename is reduced to its basename, and a nanosecond timestamp prefix keeps
// concurrent uploads of identically-named files from colliding. size is the
// expected payload length (-1 if unknown); jobID keys progress publication and
// may be empty.
func (i *Ingestor) Ingest(rawFilename string, size int64, body io.Reader, jobID string) (string, error) {
	name := filepath.Base(rawFilename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "", ErrMissingFilename
	}

	if err := os.MkdirAll(i.dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create input directory: %w", err)
	}

	unique := fmt.Sprintf("%d-%s", time.Now().UnixNano(), name)

	tmp, err := os.CreateTemp(i.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	// No-op once the file is renamed into place.
	defer os.Remove(tmp.Name())

	reader := body
	if jobID != "" && size > 0 {
		reader = &progressReader{r: body, total: size, jobID: jobID, sink: i.progress}
	}

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to flush upload: %w", err)
	}

	dest := filepath.Join(i.dir, unique)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("failed to finalize upload: %w", err)
	}

	if jobID != "" && i.progress != nil {
		i.progress.Publish(jobID, 100)
	}

	return path.Join(refPrefix, unique), nil
}

// progressReader publishes the running percentage as bytes stream in.
type progressReader struct {
	r     io.Reader
	total int64
	read  int64
	last  int
	jobID string
	sink  ProgressSink
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)

	if p.sink != nil && p.total > 0 {
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		if percent != p.last {
			p.last = percent
			p.sink.Publish(p.jobID, percent)
		}
	}
	return n, err
}
