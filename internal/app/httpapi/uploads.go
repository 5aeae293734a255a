package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// maxUploadSize bounds multipart request memory.
const maxUploadSize = 16 << 20 // 16 MiB

// uploadStore writes multipart media to local disk under random names and
// hands back the public /uploads/ URL.
type uploadStore struct {
	dir string
}

func newUploadStore(dir string) *uploadStore {
	_ = os.MkdirAll(dir, 0o755)
	return &uploadStore{dir: dir}
}

// save extracts the named file field, if present, and stores it. A missing
// field is not an error; the returned URL is empty.
func (u *uploadStore) save(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", field, err)
	}
	defer file.Close()

	name := uuid.NewString() + filepath.Ext(header.Filename)
	dst, err := os.Create(filepath.Join(u.dir, name))
	if err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		return "", fmt.Errorf("store upload: %w", err)
	}
	return "/uploads/" + name, nil
}
