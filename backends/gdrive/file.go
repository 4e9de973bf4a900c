package gdrive

// File stands for a single remote file's metadata, as reported by the
// Drive API. File is an immutable value once constructed.
type File interface {

	// Id uniquely identifies a file. This is also the path passed to
	// Backend.Open.
	Id() string

	// Name of the file, as stored in Drive.
	Name() string

	// ModTime is the last-modified time (unix seconds).
	ModTime() int64

	// Size is the file size in bytes.
	Size() int64

	// Md5 is the hex-encoded md5 checksum reported by Drive, if any.
	Md5() string
}

// interface check: File
var _ File = fileMeta{}

// fileMeta is the default, immutable implementation of File.
type fileMeta struct {
	id      string
	name    string
	modTime int64
	size    int64
	md5     string
}

func (f fileMeta) Id() string     { return f.id }
func (f fileMeta) Name() string   { return f.name }
func (f fileMeta) ModTime() int64 { return f.modTime }
func (f fileMeta) Size() int64    { return f.size }
func (f fileMeta) Md5() string    { return f.md5 }
