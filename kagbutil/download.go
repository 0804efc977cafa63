/*
Copyright © 2018 the K-AGB authors.
This file is part of K-AGB.

K-AGB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

K-AGB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with K-AGB.  If not, see <http://www.gnu.org/licenses/>.
*/

package kagbutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

// maxRetryTime is the longest time spent retrying a failed transfer.
const maxRetryTime = 2 * time.Minute

// maybeDownload checks if path is an existing local file. If not, and
// path is a URL or a blob storage location, it downloads the file to a
// temporary directory and returns the path to the downloaded file.
// For shapefiles, all associated files are downloaded and the path to
// the file with the ".shp" extension is returned.
func maybeDownload(ctx context.Context, path string, log logrus.FieldLogger) (string, error) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return path, nil
	}
	switch {
	case strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://"):
		return download(ctx, path, log, func(w io.Writer, fname string) error {
			resp, err := http.Get(fname)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return backoff.Permanent(fmt.Errorf("downloading %s: %s", fname, resp.Status))
			}
			_, err = io.Copy(w, resp.Body)
			return err
		})
	case IsBlob(path):
		u, err := url.Parse(path)
		if err != nil {
			return path, kagb.Errorf(kagb.IOError, "download", "%v", err)
		}
		bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
		if err != nil {
			return path, kagb.Errorf(kagb.IOError, "download", "%v", err)
		}
		return download(ctx, u.Path, log, func(w io.Writer, fname string) error {
			r, err := bucket.NewReader(ctx, strings.TrimPrefix(fname, "/"))
			if err != nil {
				return err
			}
			defer r.Close()
			_, err = io.Copy(w, r)
			return err
		})
	}
	return path, nil
}

// download retrieves path and, for shapefiles, its associated files into
// a new temporary directory using get, retrying failed transfers.
func download(ctx context.Context, path string, log logrus.FieldLogger, get func(w io.Writer, fname string) error) (string, error) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		return path, kagb.Errorf(kagb.IOError, "download", "creating temporary download directory: %v", err)
	}
	fnames := expandShp(path)
	for _, fname := range fnames {
		local := filepath.Join(dir, filepath.Base(fname))
		err := retry(ctx, log, func() error {
			w, err := os.Create(local)
			if err != nil {
				return backoff.Permanent(err)
			}
			if err = get(w, fname); err != nil {
				w.Close()
				return err
			}
			return w.Close()
		})
		if err != nil {
			return path, kagb.Errorf(kagb.IOError, "download", "downloading %s: %v", fname, err)
		}
		log.WithField("file", fname).Info("downloaded input file")
	}
	return filepath.Join(dir, filepath.Base(fnames[0])), nil
}

// retry calls f until it succeeds or returns a permanent error, ctx is
// done, or maxRetryTime elapses.
func retry(ctx context.Context, log logrus.FieldLogger, f func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxRetryTime
	return backoff.RetryNotify(f, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		log.WithError(err).Warnf("retrying in %v", d)
	})
}

// IsBlob returns whether the given filename represents a blob
// (i.e., if it starts with 'gs://', 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'.
// The accepted storage providers are "file" for the local filesystem
// (e.g., for testing), "gs" for Google Cloud Storage, and "s3" for AWS S3.
// For the "file" provider, name is a directory that must already exist.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("kagbutil.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("kagbutil.OpenBucket: invalid provider %s", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// expandShp returns the given file + associated [.dbf, .shx, .prj]
// files if the given file has the .shp extension, and returns the given
// file otherwise.
func expandShp(filename string) []string {
	o := []string{filename}
	if filepath.Ext(filename) != ".shp" {
		return o
	}
	base := strings.TrimSuffix(filename, ".shp")
	for _, ext := range []string{".dbf", ".shx", ".prj"} {
		o = append(o, base+ext)
	}
	return o
}
