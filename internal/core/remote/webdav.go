package remote

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/emersion/go-webdav"

	"github.com/batchscribe/batchscribe/internal/config"
)

// Uploader pushes transcript files to a WebDAV remote.
type Uploader struct {
	client *webdav.Client
	dir    string
}

// NewUploader builds an uploader for a configured remote.
func NewUploader(server config.WebDAVServer) (*Uploader, error) {
	if server.URL == "" {
		return nil, fmt.Errorf("webdav server has no URL")
	}

	httpClient := webdav.HTTPClient(http.DefaultClient)
	if server.Username != "" {
		httpClient = webdav.HTTPClientWithBasicAuth(http.DefaultClient, server.Username, server.Password)
	}

	client, err := webdav.NewClient(httpClient, server.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}

	return &Uploader{client: client, dir: strings.Trim(server.Dir, "/")}, nil
}

// Upload copies one local file to remotePath (relative, forward slashes)
// under the remote directory, creating intermediate collections as needed.
func (u *Uploader) Upload(ctx context.Context, localPath, remotePath string) error {
	target := path.Join("/", u.dir, remotePath)

	if err := u.mkdirAll(ctx, path.Dir(target)); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	dst, err := u.client.Create(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to upload %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("failed to finish upload of %s: %w", target, err)
	}
	return nil
}

// UploadTree uploads every regular file under root, preserving its relative
// layout on the remote. It returns the number of files uploaded.
func (u *Uploader) UploadTree(ctx context.Context, root string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if err := u.Upload(ctx, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	return uploaded, err
}

// mkdirAll creates each collection on the path to dir. Servers answer MKCOL
// on an existing collection with an error, which is fine to ignore.
func (u *Uploader) mkdirAll(ctx context.Context, dir string) error {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		return nil
	}
	parts := strings.Split(dir, "/")
	current := ""
	for _, part := range parts {
		current = path.Join(current, part)
		if _, err := u.client.Stat(ctx, "/"+current); err == nil {
			continue
		}
		_ = u.client.Mkdir(ctx, "/"+current)
	}
	return nil
}
