package pose

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Extension is the file suffix of serialized poses.
const Extension = ".pose"

const DefaultDirPermissions = 0755

// RelativePath returns "<dir>/<id>.pose" using forward slashes.
func RelativePath(dir, id string) string {
	return filepath.ToSlash(filepath.Join(dir, id+Extension))
}

// WriteRequest asks for Pose to be stored at Path, relative to an output root.
type WriteRequest struct {
	Path string
	Pose *Pose
}

// WriteFile stores req under root, creating parent directories as needed.
// An existing file at the destination is replaced.
func WriteFile(root string, req WriteRequest) error {
	dest := filepath.Join(root, filepath.FromSlash(req.Path))
	if err := os.MkdirAll(filepath.Dir(dest), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "create directory for %s", req.Path)
	}

	tmp := dest + "." + uuid.NewString() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "create %s", req.Path)
	}
	if err := req.Pose.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "write %s", req.Path)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "close %s", req.Path)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "rename %s", req.Path)
	}
	return nil
}

// ReadFile decodes the pose stored at path.
func ReadFile(path string) (*Pose, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return Read(f)
}
