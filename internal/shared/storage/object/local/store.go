package local

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"casedocs-backend/internal/shared/storage/object"
)

// FilesRoutePrefix is the URL path under which signed local-store URLs are
// served. The files handler must be mounted at the same route.
const FilesRoutePrefix = "/api/v1/files/"

// Store implements object.Store on the local filesystem. Presigned URLs are
// HMAC-signed links into the files handler, so downloads and direct uploads
// work without cloud credentials.
type Store struct {
	baseDir string
	baseURL string
	secret  []byte
}

// New creates a local object store rooted at baseDir. baseURL is the public
// origin signed URLs point at. An empty secret gets a random one, which keeps
// signed URLs valid for the life of the process.
func New(baseDir, baseURL string, secret []byte) *Store {
	if len(secret) == 0 {
		var b [32]byte
		if _, err := rand.Read(b[:]); err == nil {
			secret = b[:]
		} else {
			secret = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
	}
	return &Store{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}
}

var _ object.Store = (*Store)(nil)

// Put writes the reader to disk at the given key, creating parent directories
// as needed.
func (s *Store) Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	written, err := io.Copy(f, r)
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	_ = contentType
	return written, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, object.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Stat reports size and a content type guessed from the key's extension.
func (s *Store) Stat(ctx context.Context, key string) (object.Info, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return object.Info{}, err
	}
	fi, err := os.Stat(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return object.Info{}, object.ErrNotFound
	}
	if err != nil {
		return object.Info{}, err
	}
	if fi.IsDir() {
		return object.Info{}, object.ErrNotFound
	}
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return object.Info{SizeBytes: fi.Size(), ContentType: contentType}, nil
}

// Delete removes a stored object. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	err = os.Remove(fullPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns all keys under the given prefix in walk order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleanPrefix := strings.TrimLeft(path.Clean("/"+prefix), "/")
	if cleanPrefix == "" && prefix != "" && prefix != "/" {
		return nil, fmt.Errorf("invalid storage prefix %q", prefix)
	}
	// path.Clean drops a trailing slash, but "documents/org-a/" must not
	// match keys under documents/org-ab/.
	if strings.HasSuffix(prefix, "/") && cleanPrefix != "" {
		cleanPrefix += "/"
	}

	walkRoot := s.baseDir
	if cleanPrefix != "" {
		walkRoot = filepath.Join(s.baseDir, filepath.FromSlash(cleanPrefix))
		if fi, err := os.Stat(walkRoot); err != nil || !fi.IsDir() {
			walkRoot = filepath.Dir(walkRoot)
		}
	}

	var keys []string
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, cleanPrefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Presign returns a signed download URL for the key.
func (s *Store) Presign(ctx context.Context, key string, expires time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	return s.signedURL(http.MethodGet, key, expires), nil
}

// PresignPut returns a signed upload URL for the key. The content type is
// advisory; the upload handler stores whatever body arrives.
func (s *Store) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := s.resolve(key); err != nil {
		return "", err
	}
	_ = contentType
	return s.signedURL(http.MethodPut, key, expires), nil
}

// VerifyURL checks the signature and expiry carried by a signed URL. The
// files handler calls this before serving or accepting bytes.
func (s *Store) VerifyURL(method, key string, expiresUnix int64, sig string) error {
	if time.Now().Unix() > expiresUnix {
		return fmt.Errorf("signed url expired")
	}
	want := s.sign(method, key, expiresUnix)
	if !hmac.Equal([]byte(want), []byte(sig)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

func (s *Store) signedURL(method, key string, expires time.Duration) string {
	exp := time.Now().Add(expires).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", s.sign(method, key, exp))
	return s.baseURL + FilesRoutePrefix + key + "?" + q.Encode()
}

func (s *Store) sign(method, key string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s\n%d", method, key, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}
